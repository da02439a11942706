package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/admission"
	"mercator-hq/ganymede/pkg/admission/counter"
	"mercator-hq/ganymede/pkg/analytics"
	"mercator-hq/ganymede/pkg/analytics/recorder"
	"mercator-hq/ganymede/pkg/analytics/report"
	"mercator-hq/ganymede/pkg/analytics/storage"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/monitor"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede admission control server",
	Long: `Start the Ganymede server with the specified configuration.

The server guards its API surface with the configured rate limit
tiers, monitors the counter store memory footprint, and records
violations and query samples for offline analysis.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override listen address
  ganymede run --listen 0.0.0.0:8080

  # Validate config without starting server
  ganymede run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

// violationSink fans a denial out to the analytics recorder and the
// violations counter.
type violationSink struct {
	recorder  *recorder.Recorder
	collector *metrics.Collector
}

func (s *violationSink) RecordViolation(record *analytics.ViolationRecord) {
	if s.recorder != nil {
		s.recorder.RecordViolation(record)
	}
	if s.collector != nil {
		s.collector.RecordViolation(record.Tier, record.Endpoint)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to load config: %w", err))
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

	if _, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	}); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to set up logging: %w", err))
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Ganymede v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx := cli.SetupSignalHandler()

	// Metrics collector
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	// Counter store, shared by the manager and the monitor
	store := counter.NewSharded(cfg.Admission.ShardCount)

	// Admission rules: standalone file or inline table
	rules := cfg.Admission.Rules
	defaultTier := cfg.Admission.DefaultTier
	if cfg.Admission.RulesPath != "" {
		rulesFile, err := config.LoadRulesFile(cfg.Admission.RulesPath)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to load rules file: %w", err))
		}
		rules = rulesFile.Rules
		if rulesFile.DefaultTier != "" {
			defaultTier = rulesFile.DefaultTier
		}
	}

	// Analytics pipeline
	var (
		analyticsStorage analytics.Storage
		analyticsRec     *recorder.Recorder
		scheduler        *report.Scheduler
	)
	if cfg.Analytics.Enabled {
		slog.Info("initializing analytics", "backend", cfg.Analytics.Backend)

		switch cfg.Analytics.Backend {
		case "sqlite":
			analyticsStorage, err = storage.NewSQLiteStorage(&storage.SQLiteConfig{
				Path:         cfg.Analytics.SQLite.Path,
				Driver:       cfg.Analytics.SQLite.Driver,
				MaxOpenConns: cfg.Analytics.SQLite.MaxOpenConns,
				MaxIdleConns: cfg.Analytics.SQLite.MaxIdleConns,
				WALMode:      cfg.Analytics.SQLite.WALMode,
				BusyTimeout:  cfg.Analytics.SQLite.BusyTimeout,
			})
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("failed to create SQLite storage: %w", err))
			}
		case "memory":
			analyticsStorage = storage.NewMemoryStorage()
		default:
			return cli.NewCommandError("run", fmt.Errorf("unsupported analytics backend: %s", cfg.Analytics.Backend))
		}
		defer analyticsStorage.Close()

		recorderConfig := &recorder.Config{
			QueueCapacity: cfg.Analytics.Recorder.QueueCapacity,
			SampleRate:    cfg.Analytics.Recorder.SampleRate,
			BatchSize:     cfg.Analytics.Recorder.BatchSize,
			FlushInterval: cfg.Analytics.Recorder.FlushInterval,
			WriteTimeout:  cfg.Analytics.Recorder.WriteTimeout,
			ShutdownGrace: cfg.Analytics.Recorder.ShutdownGrace,
		}
		if collector != nil {
			recorderConfig.Metrics = collector.Analytics()
		}
		analyticsRec = recorder.New(analyticsStorage, recorderConfig)
		defer analyticsRec.Close()

		if collector != nil {
			collector.Analytics().ObserveRecorder(analyticsRec.QueueDepth, analyticsRec.Dropped)
		}

		generator := report.NewGenerator(analyticsStorage, &report.GeneratorConfig{
			Window:        cfg.Analytics.Reports.Window,
			TopCandidates: cfg.Analytics.Reports.TopCandidates,
		})
		schedulerConfig := &report.SchedulerConfig{
			ReportSchedule: cfg.Analytics.Reports.Schedule,
			PruneSchedule:  cfg.Analytics.Reports.PruneSchedule,
			RetentionDays:  cfg.Analytics.Reports.RetentionDays,
		}
		if collector != nil {
			schedulerConfig.Metrics = collector.Analytics()
		}
		scheduler = report.NewScheduler(generator, analyticsStorage, schedulerConfig)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to start report scheduler: %w", err))
		}
		defer scheduler.Stop()

		fmt.Println("✓ Analytics initialized")
	}

	// Admission manager
	managerConfig := admission.Config{
		Rules:       rules,
		DefaultTier: defaultTier,
		Store:       store,
	}
	if analyticsRec != nil || collector != nil {
		managerConfig.Violations = &violationSink{recorder: analyticsRec, collector: collector}
	}
	if collector != nil {
		managerConfig.Metrics = collector.Admission()
	}
	manager, err := admission.NewManager(managerConfig)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to create admission manager: %w", err))
	}
	fmt.Printf("✓ Admission manager initialized (%d tiers)\n", len(manager.Rules().Tiers()))

	resolver, err := admission.NewIdentityResolver(cfg.Admission.Identity)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to create identity resolver: %w", err))
	}

	// Resource monitor over the shared counter store
	monitorConfig := &monitor.Config{
		Interval:      cfg.Monitor.Interval,
		WarningBytes:  cfg.Monitor.WarningBytes,
		CriticalBytes: cfg.Monitor.CriticalBytes,
		HistorySize:   cfg.Monitor.HistorySize,
	}
	if collector != nil {
		monitorConfig.Metrics = collector.Store()
	}
	mon := monitor.New(store, monitorConfig)
	mon.Start(ctx)
	defer mon.Wait()
	fmt.Println("✓ Resource monitor started")

	// Rules hot reload
	if cfg.Admission.RulesPath != "" && cfg.Admission.Watch {
		watcher, err := config.NewRulesWatcher(cfg.Admission.RulesPath, config.DefaultDebounceInterval, slog.Default())
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to create rules watcher: %w", err))
		}
		go func() {
			watchErr := watcher.Watch(ctx, func() error {
				rulesFile, err := config.LoadRulesFile(cfg.Admission.RulesPath)
				if err == nil {
					tier := rulesFile.DefaultTier
					if tier == "" {
						tier = cfg.Admission.DefaultTier
					}
					var rs *admission.RuleSet
					rs, err = admission.NewRuleSet(rulesFile.Rules, tier)
					if err == nil {
						manager.ReplaceRules(rs)
					}
				}
				if collector != nil {
					collector.Admission().RecordRulesReload(err == nil)
				}
				return err
			})
			if watchErr != nil {
				slog.Error("rules watcher exited", "error", watchErr)
			}
		}()
		fmt.Printf("✓ Watching rules file: %s\n", cfg.Admission.RulesPath)
	}

	// Health checks
	checker := health.New(5 * time.Second)
	checker.RegisterCheck("rules", func(ctx context.Context) error {
		if len(manager.Rules().Tiers()) == 0 {
			return fmt.Errorf("no admission rules loaded")
		}
		return nil
	})
	if analyticsStorage != nil {
		checker.RegisterCheck("analytics_storage", func(ctx context.Context) error {
			_, err := analyticsStorage.QueryViolations(ctx, &analytics.ViolationQuery{Limit: 1})
			return err
		})
	}

	srv := server.NewServer(server.Options{
		Config:    cfg,
		Manager:   manager,
		Resolver:  resolver,
		Monitor:   mon,
		Storage:   analyticsStorage,
		Metrics:   collector,
		Health:    checker,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}
