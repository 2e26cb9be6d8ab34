// Package server implements the story gateway HTTP API: authentication
// endpoints, the story generation/rewrite pipeline, and the history and
// favorites subsystem.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kiddoland/storygate/auth"
	"github.com/kiddoland/storygate/observe"
)

// Completer is the completion client surface the handlers need. Satisfied
// by *completion.Client; tests substitute stubs.
type Completer interface {
	GenerateStory(ctx context.Context, prompt string, age int) (string, error)
	RewriteStory(ctx context.Context, originalStory, instruction string, age int) (string, error)
	SampleCompletion(ctx context.Context, prompt string) (string, error)
}

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Auth       *auth.Service
	Completer  Completer
	Stories    StoryStore // nil degrades persistence to a no-op
	Metrics    *observe.Metrics
	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server is the story gateway HTTP API server.
type Server struct {
	auth       *auth.Service
	completer  Completer
	stories    StoryStore
	metrics    *observe.Metrics
	corsOrigin string
	maxBody    int64
	logger     *slog.Logger
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	return &Server{
		auth:       cfg.Auth,
		completer:  cfg.Completer,
		stories:    cfg.Stories,
		metrics:    cfg.Metrics,
		corsOrigin: corsOrigin,
		maxBody:    maxBody,
		logger:     logger,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)
	handler = s.metricsMiddleware(handler)

	return handler
}

// RegisterRoutes mounts the API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("GET /auth/validate", s.handleValidate)

	mux.HandleFunc("POST /story/generate", s.handleGenerate)
	mux.HandleFunc("POST /story/rewrite", s.handleRewrite)

	mux.HandleFunc("POST /ai/sample", s.handleSample)
	mux.HandleFunc("POST /ai/save-favorite", s.handleSaveFavorite)
	mux.HandleFunc("GET /ai/history", s.handleHistory)
	mux.HandleFunc("GET /ai/favorites", s.handleFavorites)
	mux.HandleFunc("DELETE /ai/history/{id}", s.handleDeleteHistory)
}

// handleRoot returns the service banner.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": "StoryGate API",
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.RecordRequest(r.Context(), r.Method+" "+r.URL.Path, sw.status)
	})
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- Auth helper ---

// requireUser resolves the calling user from the Authorization header. On
// failure it writes a 401 and reports false; token failure details are
// collapsed so callers only see "missing/invalid token".
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	bearer, ok := bearerToken(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Missing authorization token.")
		return auth.User{}, false
	}
	user, err := s.auth.CurrentUser(bearer)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid or missing authorization token.")
		return auth.User{}, false
	}
	return user, true
}

// bearerToken extracts the bearer credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the error envelope used across the whole API.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
