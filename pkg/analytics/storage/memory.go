package storage

import (
	"context"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/analytics"
)

// MemoryStorage implements analytics.Storage with in-process slices.
// Intended for tests and for hosts that opt out of a database file;
// contents are lost on restart.
type MemoryStorage struct {
	mu         sync.RWMutex
	violations []*analytics.ViolationRecord
	samples    []*analytics.QueryLogEntry
	reports    []*analytics.CacheAnalysisReport
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// StoreViolations appends a batch of violation records.
func (m *MemoryStorage) StoreViolations(ctx context.Context, records []*analytics.ViolationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, records...)
	return nil
}

// StoreQuerySamples appends a batch of query log entries.
func (m *MemoryStorage) StoreQuerySamples(ctx context.Context, entries []*analytics.QueryLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, entries...)
	return nil
}

// QueryViolations returns matching records, newest first.
func (m *MemoryStorage) QueryViolations(ctx context.Context, q *analytics.ViolationQuery) ([]*analytics.ViolationRecord, error) {
	if q == nil {
		q = &analytics.ViolationQuery{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []*analytics.ViolationRecord{}
	for i := len(m.violations) - 1; i >= 0; i-- {
		r := m.violations[i]
		if q.StartTime != nil && r.Timestamp.Before(*q.StartTime) {
			continue
		}
		if q.EndTime != nil && r.Timestamp.After(*q.EndTime) {
			continue
		}
		if q.Endpoint != "" && r.Endpoint != q.Endpoint {
			continue
		}
		if q.Identity != "" && r.Identity != q.Identity {
			continue
		}
		if q.Tier != "" && r.Tier != q.Tier {
			continue
		}
		matched = append(matched, r)
	}

	// Apply pagination
	limit := 100
	if q.Limit > 0 {
		limit = q.Limit
	}
	if q.Offset >= len(matched) {
		return []*analytics.ViolationRecord{}, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// QuerySamples returns samples with timestamps in [start, end),
// oldest first.
func (m *MemoryStorage) QuerySamples(ctx context.Context, start, end time.Time) ([]*analytics.QueryLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []*analytics.QueryLogEntry{}
	for _, e := range m.samples {
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			continue
		}
		matched = append(matched, e)
	}
	return matched, nil
}

// StoreReport appends a generated report.
func (m *MemoryStorage) StoreReport(ctx context.Context, report *analytics.CacheAnalysisReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

// LatestReport returns the most recently stored report.
func (m *MemoryStorage) LatestReport(ctx context.Context) (*analytics.CacheAnalysisReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.reports) == 0 {
		return nil, analytics.ErrNoReport
	}
	latest := m.reports[0]
	for _, r := range m.reports[1:] {
		if r.GeneratedAt.After(latest.GeneratedAt) {
			latest = r
		}
	}
	return latest, nil
}

// Prune removes violations and samples older than cutoff.
func (m *MemoryStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64

	kept := m.violations[:0]
	for _, r := range m.violations {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.violations = kept

	keptSamples := m.samples[:0]
	for _, e := range m.samples {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		keptSamples = append(keptSamples, e)
	}
	m.samples = keptSamples

	return removed, nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryStorage) Close() error {
	return nil
}

// ViolationCount returns the number of stored violations. Test helper.
func (m *MemoryStorage) ViolationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.violations)
}

// SampleCount returns the number of stored query samples. Test helper.
func (m *MemoryStorage) SampleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}
