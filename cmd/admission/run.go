package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
	"mercator-hq/admission/pkg/config"
	"mercator-hq/admission/pkg/limits"
	"mercator-hq/admission/pkg/limits/journal"
	"mercator-hq/admission/pkg/server"
	"mercator-hq/admission/pkg/telemetry/health"
	"mercator-hq/admission/pkg/telemetry/logging"
	"mercator-hq/admission/pkg/telemetry/metrics"
	"mercator-hq/admission/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the admission server",
	Long: `Start the admission HTTP server with the specified configuration.

The configuration file is watched for changes. Policies whose settings did
not change keep their state across a reload; SIGHUP forces a reload.

Examples:
  # Start with default config
  admission run

  # Start with custom config
  admission run --config /etc/admission/admission.yaml

  # Override listen address
  admission run --listen 0.0.0.0:8080

  # Validate config without starting server
  admission run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger.Logger)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Tracing.Timeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	checker := health.New(cfg.Telemetry.Health.CheckTimeout)

	decisions, err := openJournal(ctx, &cfg.Journal, checker, logger.Logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	// Runs after the manager and server have stopped.
	defer decisions.Close()

	manager, err := limits.NewManager(limits.Config{
		Policies: cfg.RateLimitPolicies(),
		Metrics:  limits.NewMetrics(collector.Registerer()),
		Journal:  decisions.recorder,
		Tracer:   tracer.Tracer(),
		Logger:   logger.Logger,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer manager.Close()

	srv, err := server.New(&cfg.Server, server.Options{
		Manager:     manager,
		Policies:    cfg.Policies,
		Journal:     decisions.store,
		Health:      checker,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Tracer:      tracer.Tracer(),
		Logger:      logger.Logger,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	if !runFlags.noWatch {
		watcher, err := config.NewWatcher(cfgFile, 0, applyReload(manager, srv, logger), logger.Logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer watcher.Stop()

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := watcher.Watch(watchCtx); err != nil {
				logger.Error("config watcher failed", "error", err)
			}
		}()
		go func() {
			defer wg.Done()
			reloadOnSignal(watchCtx, watcher)
		}()
	}

	logger.Info("admission server starting",
		"version", Version,
		"address", cfg.Server.ListenAddress,
		"policies", len(cfg.Policies),
		"journal", cfg.Journal.Enabled,
		"tracing", tracer.Enabled(),
	)

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// journalParts holds the decision journal components. All fields are nil
// when the journal is disabled.
type journalParts struct {
	store     journal.Store
	recorder  *journal.Recorder
	scheduler *journal.Scheduler
}

// Close stops pruning, drains the recorder and closes the store.
func (j *journalParts) Close() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
	if j.recorder != nil {
		_ = j.recorder.Close()
	}
	if j.store != nil {
		_ = j.store.Close()
	}
}

// openJournal creates the journal store, recorder and retention scheduler
// and registers the store's readiness check.
func openJournal(ctx context.Context, cfg *config.JournalConfig, checker *health.Checker, logger *slog.Logger) (*journalParts, error) {
	parts := &journalParts{}
	if !cfg.Enabled {
		return parts, nil
	}

	switch cfg.Backend {
	case "sqlite":
		store, err := journal.NewSQLiteStore(&journal.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			WALMode:     cfg.SQLite.WALMode,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		parts.store = store
	case "memory":
		parts.store = journal.NewMemoryStore(cfg.MaxEntries)
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s", cfg.Backend)
	}

	store := parts.store
	checker.RegisterCheck("journal", func(ctx context.Context) error {
		_, err := store.Count(ctx, &journal.Query{Limit: 1})
		return err
	})

	parts.scheduler = journal.NewScheduler(store, cfg.Retention.PruneSchedule, cfg.Retention.Period)
	if err := parts.scheduler.Start(ctx); err != nil {
		logger.Warn("failed to start journal retention scheduler", "error", err)
	} else if next := parts.scheduler.NextRun(); next != nil {
		logger.Debug("journal retention scheduler started", "next_run", next)
	}

	parts.recorder = journal.NewRecorder(store, &journal.RecorderConfig{AsyncBuffer: cfg.AsyncBuffer})
	return parts, nil
}

// applyReload returns the watcher callback that applies a new configuration.
// Listener and journal settings need a restart; policies, admin keys and
// the log level are applied in place.
func applyReload(manager *limits.Manager, srv *server.Server, logger *logging.Logger) func(*config.Config) {
	return func(cfg *config.Config) {
		if err := manager.Reload(cfg.RateLimitPolicies()); err != nil {
			if !errors.Is(err, limits.ErrManagerClosed) {
				logger.Error("failed to apply reloaded policies", "error", err)
			}
			return
		}
		if err := srv.SetPolicies(cfg.Policies); err != nil {
			logger.Error("failed to apply reloaded key sources", "error", err)
		}
		srv.SetAdminKeys(cfg.Server.AdminKeys)
		if err := logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
			logger.Warn("failed to apply reloaded log level", "error", err)
		}
	}
}

// reloadOnSignal reloads the configuration on SIGHUP until ctx is done.
func reloadOnSignal(ctx context.Context, watcher *config.Watcher) {
	sigChan, stop := cli.ReloadSignal()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			_ = watcher.Reload()
		}
	}
}
