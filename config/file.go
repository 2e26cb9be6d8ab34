package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "storygate.yaml"
	homeConfigName    = "config.yaml"
)

// File is the optional YAML server configuration. Environment variables and
// command-line flags always win over file values.
type File struct {
	Host       string    `yaml:"host"`
	Port       int       `yaml:"port"`
	CORSOrigin string    `yaml:"cors_origin"`
	SQLitePath string    `yaml:"sqlite_path"`
	Retention  Retention `yaml:"retention"`
}

// Retention configures the scheduled pruning of old non-favorite story
// history records. Disabled unless both fields are set.
type Retention struct {
	// Schedule is a five-field cron expression, evaluated in UTC.
	Schedule string `yaml:"schedule"`
	// MaxAgeDays prunes non-favorite records older than this many days.
	MaxAgeDays int `yaml:"max_age_days"`
}

// Enabled reports whether retention pruning is configured.
func (r Retention) Enabled() bool {
	return strings.TrimSpace(r.Schedule) != "" && r.MaxAgeDays > 0
}

// DiscoverFilePath resolves the config file location with first-match
// semantics: the explicit path (its absence is then an error), storygate.yaml
// in the working directory, or config.yaml under ~/.storygate.
func DiscoverFilePath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFilePathFrom(explicitPath, cwd, homeDir)
}

// DiscoverFilePathFrom is a testable variant of DiscoverFilePath.
func DiscoverFilePathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".storygate", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return f, nil
}
