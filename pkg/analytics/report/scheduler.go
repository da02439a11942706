package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/analytics"
)

// SchedulerConfig contains configuration for scheduled report
// generation and retention pruning.
type SchedulerConfig struct {
	// ReportSchedule is a standard cron expression for report
	// generation (e.g. "0 2 * * *" for daily at 2 AM). Empty disables
	// scheduled reports.
	ReportSchedule string

	// PruneSchedule is a standard cron expression for retention
	// pruning. Empty disables pruning.
	PruneSchedule string

	// RetentionDays is how long violation and query sample rows are
	// kept before pruning.
	// Default: 30
	RetentionDays int

	// Metrics receives report generation observations. Nil disables
	// them.
	Metrics MetricsHook
}

// MetricsHook receives scheduler observations. Implemented by
// telemetry/metrics.
type MetricsHook interface {
	RecordReportGenerated()
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		ReportSchedule: "0 2 * * *",
		PruneSchedule:  "0 3 * * *",
		RetentionDays:  30,
	}
}

// Scheduler runs report generation and retention pruning on cron
// schedules. A failure in either job is logged and the schedule
// continues; one bad run never halts the loop.
type Scheduler struct {
	generator *Generator
	storage   analytics.Storage
	config    *SchedulerConfig
	cron      *cron.Cron
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler over the given generator and
// storage.
func NewScheduler(generator *Generator, storage analytics.Storage, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 30
	}
	return &Scheduler{
		generator: generator,
		storage:   storage,
		config:    config,
		cron:      cron.New(),
		logger:    slog.Default().With("component", "analytics.scheduler"),
	}
}

// Start begins the scheduled jobs and stops them when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.ReportSchedule != "" {
		if _, err := cron.ParseStandard(s.config.ReportSchedule); err != nil {
			return fmt.Errorf("invalid report schedule %q: %w", s.config.ReportSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.config.ReportSchedule, func() {
			s.runReport(ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule report generation: %w", err)
		}
	}

	if s.config.PruneSchedule != "" {
		if _, err := cron.ParseStandard(s.config.PruneSchedule); err != nil {
			return fmt.Errorf("invalid prune schedule %q: %w", s.config.PruneSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.config.PruneSchedule, func() {
			s.runPrune(ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule pruning: %w", err)
		}
	}

	if len(s.cron.Entries()) == 0 {
		s.logger.Info("no analytics schedules configured, scheduler idle")
		return nil
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("analytics scheduler started",
		"report_schedule", s.config.ReportSchedule,
		"prune_schedule", s.config.PruneSchedule,
		"retention_days", s.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runReport executes one scheduled report generation.
func (s *Scheduler) runReport(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during scheduled report generation", "panic", r)
		}
	}()

	if _, err := s.generator.GenerateLatest(ctx); err != nil {
		s.logger.Error("scheduled report generation failed", "error", err)
		return
	}
	if s.config.Metrics != nil {
		s.config.Metrics.RecordReportGenerated()
	}
}

// runPrune executes one scheduled retention pruning cycle.
func (s *Scheduler) runPrune(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during scheduled pruning", "panic", r)
		}
	}()

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	deleted, err := s.storage.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("analytics pruning completed",
			"deleted_count", deleted,
			"cutoff", cutoff,
		)
	}
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("analytics scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
