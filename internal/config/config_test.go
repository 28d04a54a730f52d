package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackendURL != "http://localhost:8082" {
		t.Fatalf("backend url: got %q", cfg.BackendURL)
	}
	if cfg.LaunchAttempts != 10 || cfg.LaunchDelay != 3*time.Second {
		t.Fatalf("launch budget: got %d x %s", cfg.LaunchAttempts, cfg.LaunchDelay)
	}
	if cfg.QueryTimeout != 60*time.Second {
		t.Fatalf("query timeout: got %s", cfg.QueryTimeout)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	body := "backend_url: http://backend:9000\nquery_timeout: 30s\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackendURL != "http://backend:9000" {
		t.Fatalf("backend url: got %q", cfg.BackendURL)
	}
	if cfg.QueryTimeout != 30*time.Second {
		t.Fatalf("query timeout: got %s", cfg.QueryTimeout)
	}
	// Untouched fields keep their defaults.
	if cfg.ComposeBin != "docker-compose" {
		t.Fatalf("compose bin: got %q", cfg.ComposeBin)
	}
}

func TestLoadEnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte("backend_url: http://from-file:1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASRGOT_BACKEND_URL", "http://from-env:2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackendURL != "http://from-env:2" {
		t.Fatalf("backend url: got %q", cfg.BackendURL)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadRejectsInvertedTimeoutBounds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	body := "query_timeout_min: 500s\nquery_timeout_max: 10s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation to reject min > max")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
