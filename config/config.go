// Package config loads process configuration for the story gateway.
// Secrets and upstream settings come from the environment; listener and
// retention settings can additionally come from an optional storygate.yaml.
// Configuration is built once at startup and passed down explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvLLMAPIToken    = "STORYGATE_LLM_API_TOKEN"
	EnvLLMAPIURL      = "STORYGATE_LLM_API_URL"
	EnvLLMModel       = "STORYGATE_LLM_MODEL"
	EnvAuthSecret     = "STORYGATE_AUTH_SECRET"
	EnvAuthTTLSeconds = "STORYGATE_AUTH_TTL_SECONDS"
	EnvAuthUsers      = "STORYGATE_AUTH_USERS"
	EnvSQLitePath     = "STORYGATE_SQLITE_PATH"
)

const defaultTokenTTL = time.Hour

// LLM holds the completion endpoint settings. All three values are required
// for the process to start.
type LLM struct {
	APIToken string
	APIURL   string
	Model    string
}

// SafeSummary returns a redacted view suitable for logs.
func (l LLM) SafeSummary() map[string]string {
	return map[string]string{
		"api_url":   l.APIURL,
		"model":     l.Model,
		"api_token": "redacted",
	}
}

// Config is the process configuration resolved from the environment.
type Config struct {
	LLM LLM

	// AuthSecret signs session tokens. Its absence is a fatal
	// configuration error at signer construction, not a request failure.
	AuthSecret string
	TokenTTL   time.Duration

	// AuthUsersJSON is an optional operator-supplied credential list.
	AuthUsersJSON string

	// SQLitePath is the persistence location. Empty degrades persistence:
	// registration returns unavailable and story saves become no-ops.
	SQLitePath string
}

// FromEnv reads configuration from the environment. Missing LLM settings are
// an error naming every absent variable.
func FromEnv() (Config, error) {
	cfg := Config{
		LLM: LLM{
			APIToken: readEnv(EnvLLMAPIToken),
			APIURL:   readEnv(EnvLLMAPIURL),
			Model:    readEnv(EnvLLMModel),
		},
		AuthSecret:    readEnv(EnvAuthSecret),
		TokenTTL:      defaultTokenTTL,
		AuthUsersJSON: os.Getenv(EnvAuthUsers),
		SQLitePath:    readEnv(EnvSQLitePath),
	}

	var missing []string
	if cfg.LLM.APIToken == "" {
		missing = append(missing, EnvLLMAPIToken)
	}
	if cfg.LLM.APIURL == "" {
		missing = append(missing, EnvLLMAPIURL)
	}
	if cfg.LLM.Model == "" {
		missing = append(missing, EnvLLMModel)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required model endpoint configuration: %s", strings.Join(missing, ", "))
	}

	if raw := readEnv(EnvAuthTTLSeconds); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("%s must be a positive integer, got %q", EnvAuthTTLSeconds, raw)
		}
		cfg.TokenTTL = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}

func readEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
