// Package config loads bridge configuration. Defaults come from code, an
// optional YAML file overlays them, and environment variables (envdecode
// tags) take final precedence. The YAML file can additionally be watched for
// hot reload of the settings that are safe to change at runtime.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config holds all tunables of the bridge process.
type Config struct {
	// BackendURL is the base URL of the ASR-GoT HTTP service.
	BackendURL string `yaml:"backend_url" env:"ASRGOT_BACKEND_URL"`

	// ComposeDir is the directory holding the docker-compose project that
	// brings the backend up. Empty means the current directory.
	ComposeDir string `yaml:"compose_dir" env:"ASRGOT_COMPOSE_DIR"`

	// ComposeBin is the orchestration command invoked for start/stop.
	ComposeBin string `yaml:"compose_bin" env:"ASRGOT_COMPOSE_BIN"`

	// LogFile is the append-only diagnostics file. Empty disables the file
	// sink; diagnostics still go to stderr. Stdout is never used for logs.
	LogFile string `yaml:"log_file" env:"ASRGOT_LOG_FILE"`

	// LogLevel is one of debug, info, warn, error. Hot-reloadable.
	LogLevel string `yaml:"log_level" env:"ASRGOT_LOG_LEVEL"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr" env:"ASRGOT_METRICS_ADDR"`

	// ProbeTimeout bounds a single health check.
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"ASRGOT_PROBE_TIMEOUT"`

	// LaunchAttempts and LaunchDelay shape the post-launch poll budget.
	LaunchAttempts int           `yaml:"launch_attempts" env:"ASRGOT_LAUNCH_ATTEMPTS"`
	LaunchDelay    time.Duration `yaml:"launch_delay" env:"ASRGOT_LAUNCH_DELAY"`

	// QueryTimeout is the default forwarded-call deadline. Callers may
	// override per request within [QueryTimeoutMin, QueryTimeoutMax].
	// Hot-reloadable.
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"ASRGOT_QUERY_TIMEOUT"`
	QueryTimeoutMin time.Duration `yaml:"query_timeout_min" env:"ASRGOT_QUERY_TIMEOUT_MIN"`
	QueryTimeoutMax time.Duration `yaml:"query_timeout_max" env:"ASRGOT_QUERY_TIMEOUT_MAX"`
}

// Default returns the built-in configuration, matching the well-known local
// deployment of the backend.
func Default() Config {
	return Config{
		BackendURL:      "http://localhost:8082",
		ComposeBin:      "docker-compose",
		LogLevel:        "info",
		ProbeTimeout:    2 * time.Second,
		LaunchAttempts:  10,
		LaunchDelay:     3 * time.Second,
		QueryTimeout:    60 * time.Second,
		QueryTimeoutMin: 10 * time.Second,
		QueryTimeoutMax: 300 * time.Second,
	}
}

// Load builds a Config from defaults, the optional YAML file at path, and the
// environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Environment wins over file values; unset variables leave fields alone.
	_ = envdecode.Decode(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url must not be empty")
	}
	if c.LaunchAttempts < 1 {
		return fmt.Errorf("launch_attempts must be at least 1, got %d", c.LaunchAttempts)
	}
	if c.QueryTimeoutMin > c.QueryTimeoutMax {
		return fmt.Errorf("query_timeout_min %s exceeds query_timeout_max %s", c.QueryTimeoutMin, c.QueryTimeoutMax)
	}
	return nil
}
