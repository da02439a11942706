package analytics

import (
	"context"
	"time"
)

// ViolationRecord captures one rejected request. Records are append
// only: created exactly once per denial, never mutated after being
// persisted.
type ViolationRecord struct {
	// ID is a UUID v4 assigned when the record is created.
	ID string `json:"id"`

	// Timestamp is when the request was denied.
	Timestamp time.Time `json:"timestamp"`

	// Endpoint is the canonical endpoint identifier (route name).
	Endpoint string `json:"endpoint"`

	// Identity is the client identity the counter was keyed on.
	Identity string `json:"identity"`

	// Tier is the rate limit tier whose rule was applied.
	Tier string `json:"tier"`

	// Window is the duration of the rule window that tripped. A rule
	// may combine several windows; this records which one denied the
	// request.
	Window time.Duration `json:"window"`

	// CurrentCount is the counter value after this attempt.
	CurrentCount int64 `json:"current_count"`

	// LimitValue is the tripped window's configured maximum.
	LimitValue int `json:"limit_value"`
}

// QueryLogEntry is one database query sample submitted voluntarily by
// a protected endpoint. Samples feed cache analysis only; they never
// influence admission decisions.
type QueryLogEntry struct {
	// Timestamp is when the query executed.
	Timestamp time.Time `json:"timestamp"`

	// Endpoint is the canonical endpoint that issued the query.
	Endpoint string `json:"endpoint"`

	// QueryHash is the content hash of the normalized query template,
	// literals stripped. See the queryhash package.
	QueryHash string `json:"query_hash"`

	// ExecutionTime is how long the query took.
	ExecutionTime time.Duration `json:"execution_time"`

	// ResultSize is the number of rows (or bytes, the caller's choice)
	// the query returned.
	ResultSize int `json:"result_size"`
}

// CacheCandidate is one ranked entry in a cache analysis report.
type CacheCandidate struct {
	// QueryHash identifies the duplicated query template.
	QueryHash string `json:"query_hash"`

	// Count is how many times the template was observed in the period.
	Count int64 `json:"count"`

	// DuplicateCount is Count minus one: executions a cache would have
	// absorbed.
	DuplicateCount int64 `json:"duplicate_count"`

	// AvgExecutionTime is the mean execution time of the template.
	AvgExecutionTime time.Duration `json:"avg_execution_time"`

	// EstimatedSavings is DuplicateCount x AvgExecutionTime: the
	// latency a perfect cache would have saved over the period.
	EstimatedSavings time.Duration `json:"estimated_savings"`
}

// CacheAnalysisReport is the periodically recomputed cache-hit
// potential summary over one time period.
type CacheAnalysisReport struct {
	// ID is a UUID v4 assigned at generation time.
	ID string `json:"id"`

	// PeriodStart and PeriodEnd bound the analyzed window.
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	// GeneratedAt is when the report was computed.
	GeneratedAt time.Time `json:"generated_at"`

	// TotalQueries is the number of samples in the period.
	TotalQueries int64 `json:"total_queries"`

	// UniqueQueries is the number of distinct query hashes.
	UniqueQueries int64 `json:"unique_queries"`

	// DuplicateRatio is 1 - unique/total, or 0 for an empty period.
	DuplicateRatio float64 `json:"duplicate_ratio"`

	// Candidates are the top templates ranked by estimated savings,
	// descending, ties broken by hash for deterministic output.
	Candidates []CacheCandidate `json:"candidates"`
}

// ViolationQuery filters violation history reads.
// Zero-valued fields are ignored.
type ViolationQuery struct {
	// StartTime and EndTime bound the Timestamp range (inclusive).
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Endpoint filters by exact endpoint identifier.
	Endpoint string `json:"endpoint,omitempty"`

	// Identity filters by exact client identity.
	Identity string `json:"identity,omitempty"`

	// Tier filters by tier name.
	Tier string `json:"tier,omitempty"`

	// Limit caps the result count (default 100). Offset pages results.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Storage is the durable analytics backend. It is written only by the
// recorder's single drain worker and by the report generator; request
// handling workers never touch it.
type Storage interface {
	// StoreViolations persists a batch of violation records.
	StoreViolations(ctx context.Context, records []*ViolationRecord) error

	// StoreQuerySamples persists a batch of query log entries.
	StoreQuerySamples(ctx context.Context, entries []*QueryLogEntry) error

	// QueryViolations returns violation records matching the filters,
	// newest first.
	QueryViolations(ctx context.Context, q *ViolationQuery) ([]*ViolationRecord, error)

	// QuerySamples returns all query samples with Timestamp in
	// [start, end), oldest first.
	QuerySamples(ctx context.Context, start, end time.Time) ([]*QueryLogEntry, error)

	// StoreReport persists a generated cache analysis report.
	StoreReport(ctx context.Context, report *CacheAnalysisReport) error

	// LatestReport returns the most recently generated report, or
	// ErrNoReport when none exists.
	LatestReport(ctx context.Context) (*CacheAnalysisReport, error)

	// Prune deletes violation and query sample rows with timestamps
	// before cutoff, returning the number of rows removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}
