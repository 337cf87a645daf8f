// Package config loads engine and CLI settings from an optional YAML
// file, with environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultDBPath              = "optura.db"
	DefaultConfidenceThreshold = 0.5
	DefaultMaxRetries          = 3
	DefaultTestTimeoutSeconds  = 60
)

// Config is the full tool configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// ConfidenceThreshold forces requires_approval on tasks scored
	// below it.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// ApproveFromPending permits sign-off before tests have run.
	ApproveFromPending bool `yaml:"approve_from_pending"`

	// MaxRetries bounds optimistic-concurrency retries per mutation.
	MaxRetries int `yaml:"max_retries"`

	// TestCommand is the external test executor invoked by run-tests;
	// it receives the task id as its last argument.
	TestCommand []string `yaml:"test_command"`

	// TestTimeoutSeconds bounds one test run.
	TestTimeoutSeconds int `yaml:"test_timeout_seconds"`

	// Model overrides the planner's Claude model.
	Model string `yaml:"model"`
}

// Default returns a Config with standard values.
func Default() Config {
	return Config{
		DBPath:              DefaultDBPath,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MaxRetries:          DefaultMaxRetries,
		TestTimeoutSeconds:  DefaultTestTimeoutSeconds,
	}
}

// Load reads path if it exists and merges it over the defaults. A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects out-of-range settings.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.TestTimeoutSeconds <= 0 {
		return fmt.Errorf("test_timeout_seconds must be positive, got %d", c.TestTimeoutSeconds)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	return nil
}
