package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// TestLoad verifies parsing, defaults, and overrides.
func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
rules:
  path: rules/
  watch: true
state:
  backend: sqlite
  sqlite:
    path: data/state.db
  cache_ttl: 2m
  cache_max_size: 500
semantic:
  base_url: http://localhost:7700
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Rules.Path != "rules/" || !cfg.Rules.Watch {
		t.Errorf("Rules = %+v", cfg.Rules)
	}
	if cfg.State.Backend != StateBackendSQLite || cfg.State.SQLite.Path != "data/state.db" {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.State.CacheTTL != 2*time.Minute || cfg.State.CacheMaxSize != 500 {
		t.Errorf("cache tuning = %v / %d", cfg.State.CacheTTL, cfg.State.CacheMaxSize)
	}
	if cfg.Semantic == nil || cfg.Semantic.BaseURL != "http://localhost:7700" {
		t.Errorf("Semantic = %+v", cfg.Semantic)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.MetricsEnabled() || cfg.Metrics.Namespace != "securecheck" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

// TestLoad_MinimalDefaults verifies a minimal config picks up defaults.
func TestLoad_MinimalDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rules:\n  path: rules/\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != ":8642" {
		t.Errorf("Listen = %q, want default", cfg.Listen)
	}
	if cfg.State.Backend != StateBackendNone {
		t.Errorf("Backend = %q, want none", cfg.State.Backend)
	}
	if cfg.Semantic != nil {
		t.Error("Semantic should be nil when omitted")
	}
}

// TestValidate covers the failure cases.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing rules path", "listen: ':1'\n"},
		{"sqlite without path", "rules:\n  path: r/\nstate:\n  backend: sqlite\n"},
		{"redis without addr", "rules:\n  path: r/\nstate:\n  backend: redis\n"},
		{"unknown backend", "rules:\n  path: r/\nstate:\n  backend: dynamo\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatal("Load() accepted invalid config")
			}
		})
	}
}
