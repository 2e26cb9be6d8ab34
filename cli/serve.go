// Package cli implements the storygate command line interface.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	_ "modernc.org/sqlite"

	"github.com/kiddoland/storygate/auth"
	"github.com/kiddoland/storygate/completion"
	"github.com/kiddoland/storygate/config"
	"github.com/kiddoland/storygate/observe"
	"github.com/kiddoland/storygate/server"
	"github.com/kiddoland/storygate/token"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the story gateway HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 8000, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().String("sqlite-path", "", "Path to SQLite database (default: in-memory demo mode without persistence)")
	cmd.Flags().String("config", "", "Path to storygate.yaml")
	cmd.Flags().String("otel-endpoint", "", "OTLP/HTTP trace endpoint (empty disables tracing)")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 90*time.Second, "HTTP write timeout")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	sqlitePath, _ := cmd.Flags().GetString("sqlite-path")
	explicitConfigPath, _ := cmd.Flags().GetString("config")
	otelEndpoint, _ := cmd.Flags().GetString("otel-endpoint")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	maxBody, _ := cmd.Flags().GetInt64("max-body")

	cfg, err := config.FromEnv()
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	if cfg.AuthSecret == "" {
		return exitError(exitConfig, "%s is not configured on the server", config.EnvAuthSecret)
	}

	var fileCfg config.File
	configPath, found, err := config.DiscoverFilePath(explicitConfigPath)
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	if found {
		fileCfg, err = config.LoadFile(configPath)
		if err != nil {
			return exitError(exitConfig, "loading %s: %v", configPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded configuration from %s\n", configPath)
	}

	// Flags win over the file; the file wins over built-in defaults.
	if !cmd.Flags().Changed("host") && fileCfg.Host != "" {
		host = fileCfg.Host
	}
	if !cmd.Flags().Changed("port") && fileCfg.Port != 0 {
		port = fileCfg.Port
	}
	if !cmd.Flags().Changed("cors-origin") && fileCfg.CORSOrigin != "" {
		corsOrigin = fileCfg.CORSOrigin
	}
	if sqlitePath == "" {
		sqlitePath = fileCfg.SQLitePath
	}
	if sqlitePath == "" {
		sqlitePath = cfg.SQLitePath
	}

	logger := slog.Default()

	tracingShutdown, err := observe.SetupTracing(cmd.Context(), otelEndpoint)
	if err != nil {
		return exitError(exitRuntime, "initializing tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracingShutdown(shutdownCtx)
	}()

	metrics, err := observe.NewMetrics(otelapi.GetMeterProvider().Meter("storygate/server"))
	if err != nil {
		return exitError(exitRuntime, "initializing metrics: %v", err)
	}

	signer, err := token.NewSigner([]byte(cfg.AuthSecret))
	if err != nil {
		return exitError(exitConfig, "initializing token signer: %v", err)
	}

	// Fallback accounts: the operator-supplied list when present, the
	// built-in demo set otherwise.
	var fallback auth.CredentialStore
	if cfg.AuthUsersJSON != "" {
		fallback, err = auth.ParseUserList(cfg.AuthUsersJSON)
		if err != nil {
			return exitError(exitConfig, "%s: %v", config.EnvAuthUsers, err)
		}
	} else {
		fallback, err = auth.NewDemoStore()
		if err != nil {
			return exitError(exitRuntime, "seeding demo accounts: %v", err)
		}
	}

	var (
		primary auth.CredentialStore
		stories server.StoryStore
	)
	if sqlitePath != "" {
		db, err := sql.Open("sqlite", sqlitePath)
		if err != nil {
			return exitError(exitRuntime, "opening sqlite database: %v", err)
		}
		defer func() {
			_ = db.Close()
		}()

		credStore, err := auth.NewSQLiteStore(db)
		if err != nil {
			return exitError(exitRuntime, "opening sqlite credential store: %v", err)
		}
		primary = credStore

		storyStore, err := server.NewStorySQLiteStore(db)
		if err != nil {
			return exitError(exitRuntime, "opening sqlite story store: %v", err)
		}
		stories = storyStore
	} else {
		logger.Warn("no sqlite path configured; registration is disabled and story history is not persisted")
	}

	authSvc, err := auth.NewService(auth.ServiceConfig{
		Primary:  primary,
		Fallback: fallback,
		Signer:   signer,
		TokenTTL: cfg.TokenTTL,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitRuntime, "creating auth service: %v", err)
	}

	completer, err := completion.NewClient(completion.Config{
		APIURL:   cfg.LLM.APIURL,
		APIToken: cfg.LLM.APIToken,
		Model:    cfg.LLM.Model,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitConfig, "creating completion client: %v", err)
	}
	logger.Info("completion endpoint configured", "settings", cfg.LLM.SafeSummary())

	gateway := server.NewServer(server.ServerConfig{
		Auth:       authSvc,
		Completer:  completer,
		Stories:    stories,
		Metrics:    metrics,
		CORSOrigin: corsOrigin,
		MaxBody:    maxBody,
		Logger:     logger,
	})

	// Signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fileCfg.Retention.Enabled() {
		if stories == nil {
			logger.Warn("retention schedule configured but no story store is available; skipping pruner")
		} else {
			maxAge := time.Duration(fileCfg.Retention.MaxAgeDays) * 24 * time.Hour
			pruner, err := server.NewPruner(stories, fileCfg.Retention.Schedule, maxAge, logger)
			if err != nil {
				return exitError(exitConfig, "configuring retention pruner: %v", err)
			}
			go pruner.Run(ctx)
			logger.Info("history retention enabled", "schedule", fileCfg.Retention.Schedule, "max_age_days", fileCfg.Retention.MaxAgeDays)
		}
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      gateway.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "StoryGate listening on %s\n", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}
