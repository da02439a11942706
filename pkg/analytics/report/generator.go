// Package report computes cache-hit-potential reports from persisted
// query samples and schedules their generation and analytics retention
// pruning.
package report

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/analytics"
)

// GeneratorConfig contains configuration for the report generator.
type GeneratorConfig struct {
	// Window is the period each report covers, ending at generation
	// time when no explicit bounds are given.
	// Default: 24 hours
	Window time.Duration

	// TopCandidates caps the number of ranked candidates per report.
	// Default: 20
	TopCandidates int
}

// DefaultGeneratorConfig returns the default generator configuration.
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Window:        24 * time.Hour,
		TopCandidates: 20,
	}
}

// Generator computes cache analysis reports. This is a batch
// computation over durable storage, never part of the request path.
type Generator struct {
	storage analytics.Storage
	config  *GeneratorConfig
	logger  *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewGenerator creates a report generator over the given storage.
func NewGenerator(storage analytics.Storage, config *GeneratorConfig) *Generator {
	if config == nil {
		config = DefaultGeneratorConfig()
	}
	if config.Window <= 0 {
		config.Window = 24 * time.Hour
	}
	if config.TopCandidates <= 0 {
		config.TopCandidates = 20
	}
	return &Generator{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "analytics.report"),
		now:     time.Now,
	}
}

// Generate computes the report for query samples in [start, end),
// persists it, and returns it.
//
// The computation is deterministic: run twice over the same immutable
// window it produces identical ratios and candidate ordering.
func (g *Generator) Generate(ctx context.Context, start, end time.Time) (*analytics.CacheAnalysisReport, error) {
	samples, err := g.storage.QuerySamples(ctx, start, end)
	if err != nil {
		return nil, &analytics.ReportError{
			PeriodStart: start.Format(time.RFC3339),
			PeriodEnd:   end.Format(time.RFC3339),
			Cause:       err,
		}
	}

	report := g.compute(samples, start, end)

	if err := g.storage.StoreReport(ctx, report); err != nil {
		return nil, &analytics.ReportError{
			PeriodStart: start.Format(time.RFC3339),
			PeriodEnd:   end.Format(time.RFC3339),
			Cause:       err,
		}
	}

	g.logger.Info("cache analysis report generated",
		"report_id", report.ID,
		"total_queries", report.TotalQueries,
		"unique_queries", report.UniqueQueries,
		"duplicate_ratio", report.DuplicateRatio,
		"candidates", len(report.Candidates),
	)

	return report, nil
}

// GenerateLatest computes the report for the configured window ending
// now.
func (g *Generator) GenerateLatest(ctx context.Context) (*analytics.CacheAnalysisReport, error) {
	end := g.now()
	return g.Generate(ctx, end.Add(-g.config.Window), end)
}

// compute derives the report from a sample set.
func (g *Generator) compute(samples []*analytics.QueryLogEntry, start, end time.Time) *analytics.CacheAnalysisReport {
	type aggregate struct {
		count     int64
		totalTime time.Duration
	}
	byHash := make(map[string]*aggregate)

	for _, s := range samples {
		agg, ok := byHash[s.QueryHash]
		if !ok {
			agg = &aggregate{}
			byHash[s.QueryHash] = agg
		}
		agg.count++
		agg.totalTime += s.ExecutionTime
	}

	total := int64(len(samples))
	unique := int64(len(byHash))

	ratio := 0.0
	if total > 0 {
		ratio = 1.0 - float64(unique)/float64(total)
	}

	candidates := make([]analytics.CacheCandidate, 0, len(byHash))
	for hash, agg := range byHash {
		if agg.count < 2 {
			continue // never executed twice, nothing to cache
		}
		avg := agg.totalTime / time.Duration(agg.count)
		dup := agg.count - 1
		candidates = append(candidates, analytics.CacheCandidate{
			QueryHash:        hash,
			Count:            agg.count,
			DuplicateCount:   dup,
			AvgExecutionTime: avg,
			EstimatedSavings: time.Duration(dup) * avg,
		})
	}

	// Rank by estimated payoff; break ties on hash so the ordering is
	// stable across runs.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].EstimatedSavings != candidates[j].EstimatedSavings {
			return candidates[i].EstimatedSavings > candidates[j].EstimatedSavings
		}
		return candidates[i].QueryHash < candidates[j].QueryHash
	})
	if len(candidates) > g.config.TopCandidates {
		candidates = candidates[:g.config.TopCandidates]
	}

	return &analytics.CacheAnalysisReport{
		ID:             uuid.New().String(),
		PeriodStart:    start,
		PeriodEnd:      end,
		GeneratedAt:    g.now(),
		TotalQueries:   total,
		UniqueQueries:  unique,
		DuplicateRatio: ratio,
		Candidates:     candidates,
	}
}
