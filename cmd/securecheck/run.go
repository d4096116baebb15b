package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/securecheckio/rules-engine/pkg/cli"
	"github.com/securecheckio/rules-engine/pkg/config"
	"github.com/securecheckio/rules-engine/pkg/engine"
	"github.com/securecheckio/rules-engine/pkg/rules"
	"github.com/securecheckio/rules-engine/pkg/rules/source"
	"github.com/securecheckio/rules-engine/pkg/semantic"
	"github.com/securecheckio/rules-engine/pkg/server"
	"github.com/securecheckio/rules-engine/pkg/state"
	"github.com/securecheckio/rules-engine/pkg/state/retention"
	"github.com/securecheckio/rules-engine/pkg/state/storage"
	"github.com/securecheckio/rules-engine/pkg/telemetry/logging"
	"github.com/securecheckio/rules-engine/pkg/telemetry/metrics"
	"github.com/securecheckio/rules-engine/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the securecheck admin backend",
	Long: `Start the rules engine with the specified configuration and serve the
admin/test HTTP API.

Examples:
  # Start with default config
  securecheck run

  # Start with custom config
  securecheck run --config /etc/securecheck/config.yaml

  # Override listen address
  securecheck run --listen 0.0.0.0:8642

  # Validate config without starting the server
  securecheck run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Listen = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		if cfg.Logging == nil {
			cfg.Logging = logging.DefaultConfig()
		}
		cfg.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx := cli.SetupSignalHandler()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer shutdownTracing(context.Background())

	provider, providerCleanup, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer providerCleanup()

	var matcher semantic.Matcher
	if cfg.Semantic != nil {
		matcher, err = semantic.NewClient(cfg.Semantic, logger)
		if err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	var engineMetrics *metrics.EngineMetrics
	if cfg.Metrics.MetricsEnabled() {
		engineMetrics = metrics.NewEngineMetrics(cfg.Metrics.Namespace, registry)
	}

	cacheCfg := state.DefaultCacheConfig()
	if cfg.State.CacheTTL > 0 {
		cacheCfg.TTL = cfg.State.CacheTTL
	}
	if cfg.State.CacheMaxSize > 0 {
		cacheCfg.MaxSize = cfg.State.CacheMaxSize
	}

	eng := engine.New(engine.Options{
		Semantic: matcher,
		Provider: provider,
		Cache:    cacheCfg,
		Logger:   logger,
		Metrics:  engineMetrics,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Shutdown(shutdownCtx); err != nil {
			logger.Error("engine shutdown failed", "error", err)
		}
	}()

	ruleSource := source.NewFileSource(cfg.Rules.Path, logger)
	reload := func() error {
		list, err := ruleSource.LoadRules(ctx)
		if err != nil {
			return err
		}
		return eng.LoadRules(list)
	}
	if err := reload(); err != nil {
		return fmt.Errorf("initial rule load failed: %w", err)
	}
	logger.Info("engine ready", "rules", eng.RuleCount())

	if cfg.Rules.Watch {
		watcher, err := rules.NewWatcher(rules.DefaultWatcherConfig(cfg.Rules.Path), logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Watch(ctx, reload); err != nil {
				logger.Error("rule watcher exited", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	var metricsRegistry *prometheus.Registry
	if cfg.Metrics.MetricsEnabled() {
		metricsRegistry = registry
	}
	srv := server.New(eng, server.Options{
		Listen:   cfg.Listen,
		Registry: metricsRegistry,
		Logger:   logger,
	})
	return srv.Start(ctx)
}

// buildProvider constructs the configured state provider and, for sqlite,
// starts the retention scheduler. The returned cleanup closes everything in
// reverse order.
func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (state.Provider, func(), error) {
	noop := func() {}

	switch cfg.State.Backend {
	case "", config.StateBackendNone:
		return nil, noop, nil

	case config.StateBackendMemory:
		return storage.NewMemoryStore(), noop, nil

	case config.StateBackendSQLite:
		store, err := storage.NewSQLiteStore(cfg.State.SQLite)
		if err != nil {
			return nil, noop, err
		}
		pruner := retention.NewScheduler(store, cfg.State.PruneSchedule)
		if err := pruner.Start(ctx); err != nil {
			store.Close()
			return nil, noop, err
		}
		return store, func() {
			pruner.Stop()
			if err := store.Close(); err != nil {
				logger.Error("state store close failed", "error", err)
			}
		}, nil

	case config.StateBackendRedis:
		store, err := storage.NewRedisStore(ctx, cfg.State.Redis)
		if err != nil {
			return nil, noop, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("state store close failed", "error", err)
			}
		}, nil

	default:
		return nil, noop, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}
