// Package config defines the YAML configuration for the securecheck server
// binary and the loading/validation pipeline around it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/securecheckio/rules-engine/pkg/semantic"
	"github.com/securecheckio/rules-engine/pkg/state/storage"
	"github.com/securecheckio/rules-engine/pkg/telemetry/logging"
	"github.com/securecheckio/rules-engine/pkg/telemetry/tracing"
)

// StateBackend selects the persistence provider for conversation state.
type StateBackend string

const (
	StateBackendNone   StateBackend = "none"
	StateBackendMemory StateBackend = "memory"
	StateBackendSQLite StateBackend = "sqlite"
	StateBackendRedis  StateBackend = "redis"
)

// Config is the root configuration for the server binary.
type Config struct {
	// Listen is the admin/test backend bind address. Default: ":8642".
	Listen string `yaml:"listen,omitempty"`

	// Rules configures rule loading.
	Rules RulesConfig `yaml:"rules"`

	// State configures conversation state persistence and caching.
	State StateConfig `yaml:"state,omitempty"`

	// Semantic configures the similarity backend. Nil disables the
	// semantic stage.
	Semantic *semantic.ClientConfig `yaml:"semantic,omitempty"`

	// Logging configures the process logger.
	Logging *logging.Config `yaml:"logging,omitempty"`

	// Tracing configures OTLP span export.
	Tracing *tracing.Config `yaml:"tracing,omitempty"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// RulesConfig controls where rules come from and whether they hot-reload.
type RulesConfig struct {
	// Path is the rule file or directory.
	Path string `yaml:"path"`

	// Watch enables fsnotify hot reload of the rule path.
	Watch bool `yaml:"watch,omitempty"`
}

// StateConfig controls conversation state persistence.
type StateConfig struct {
	// Backend is one of none, memory, sqlite, redis. Default: none.
	Backend StateBackend `yaml:"backend,omitempty"`

	// SQLite configures the sqlite backend.
	SQLite *storage.SQLiteConfig `yaml:"sqlite,omitempty"`

	// Redis configures the redis backend.
	Redis *storage.RedisConfig `yaml:"redis,omitempty"`

	// CacheTTL overrides the state cache entry TTL.
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`

	// CacheMaxSize overrides the state cache capacity.
	CacheMaxSize int `yaml:"cache_max_size,omitempty"`

	// PruneSchedule is the cron schedule for expired-state pruning
	// (sqlite backend only). Empty means hourly.
	PruneSchedule string `yaml:"prune_schedule,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled serves /metrics when true. Default: true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Namespace prefixes all metric names. Default: "securecheck".
	Namespace string `yaml:"namespace,omitempty"`
}

// MetricsEnabled reports whether the metrics endpoint is on.
func (m *MetricsConfig) MetricsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Listen:  ":8642",
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{Namespace: "securecheck"},
		State:   StateConfig{Backend: StateBackendNone},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Rules.Path == "" {
		return fmt.Errorf("rules.path is required")
	}
	switch c.State.Backend {
	case "", StateBackendNone, StateBackendMemory:
	case StateBackendSQLite:
		if c.State.SQLite == nil || c.State.SQLite.Path == "" {
			return fmt.Errorf("state.sqlite.path is required for the sqlite backend")
		}
	case StateBackendRedis:
		if c.State.Redis == nil || c.State.Redis.Addr == "" {
			return fmt.Errorf("state.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	if c.State.CacheMaxSize < 0 {
		return fmt.Errorf("state.cache_max_size must be positive")
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "securecheck"
	}
	return nil
}
