package admission

import (
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/admission/counter"
	"mercator-hq/ganymede/pkg/analytics"
)

// faultyStore fails every operation, for fail-closed tests.
type faultyStore struct{}

func (faultyStore) IncrementAndCheck(counter.Key, time.Time, int) (int64, bool, error) {
	return 0, false, errors.New("store corrupted")
}
func (faultyStore) Sweep(time.Time) int        { return 0 }
func (faultyStore) EstimateMemoryBytes() int64 { return 0 }
func (faultyStore) Len() int                   { return 0 }

// panickyStore panics on increment, for panic-recovery tests.
type panickyStore struct{ faultyStore }

func (panickyStore) IncrementAndCheck(counter.Key, time.Time, int) (int64, bool, error) {
	panic("store invariant violated")
}

// captureSink collects violation records synchronously.
type captureSink struct {
	mu      sync.Mutex
	records []*analytics.ViolationRecord
}

func (c *captureSink) RecordViolation(r *analytics.ViolationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *captureSink) all() []*analytics.ViolationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*analytics.ViolationRecord{}, c.records...)
}

// fixedClock returns a controllable clock function.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fixedClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fixedClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Rules == nil {
		cfg.Rules = []Rule{
			{
				Tier:     "expensive",
				Windows:  []Window{{Max: 10, Duration: time.Minute}},
				Patterns: []string{"ai.*"},
			},
			{
				Tier:     "cheap",
				Windows:  []Window{{Max: 1000, Duration: time.Minute}},
				Patterns: []string{"misc"},
			},
		}
		cfg.DefaultTier = "cheap"
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

// ============================================================================
// End-to-End Decision Tests
// ============================================================================

func TestCheck_CountdownAndDenial(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 7, 1, 12, 0, 5, 0, time.UTC)}
	sink := &captureSink{}
	m := newTestManager(t, Config{Violations: sink, Clock: clock.now})

	// Ten requests within the same minute all pass, remaining counting
	// down 9, 8, ..., 0.
	for i := 0; i < 10; i++ {
		d := m.Check("X", "ai.analyze")
		if !d.Allowed {
			t.Fatalf("Request %d unexpectedly denied", i+1)
		}
		if want := 9 - i; d.Remaining != want {
			t.Errorf("Request %d: expected remaining %d, got %d", i+1, want, d.Remaining)
		}
		if d.Tier != "expensive" {
			t.Errorf("Expected tier expensive, got %q", d.Tier)
		}
	}

	// The eleventh is denied.
	d := m.Check("X", "ai.analyze")
	if d.Allowed {
		t.Fatal("Eleventh request unexpectedly allowed")
	}
	if d.Remaining != 0 {
		t.Errorf("Expected remaining 0 on denial, got %d", d.Remaining)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("Expected positive RetryAfter, got %v", d.RetryAfter)
	}

	// Exactly one violation record, with the denial's counter state.
	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("Expected 1 violation record, got %d", len(records))
	}
	v := records[0]
	if v.Tier != "expensive" || v.Window != time.Minute {
		t.Errorf("Expected expensive/1m violation, got %s/%v", v.Tier, v.Window)
	}
	if v.CurrentCount != 11 {
		t.Errorf("Expected current_count 11, got %d", v.CurrentCount)
	}
	if v.LimitValue != 10 {
		t.Errorf("Expected limit_value 10, got %d", v.LimitValue)
	}
	if v.Identity != "X" || v.Endpoint != "ai.analyze" {
		t.Errorf("Unexpected identity/endpoint: %s/%s", v.Identity, v.Endpoint)
	}
}

func TestCheck_WindowRollover(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 7, 1, 12, 0, 59, int(999*time.Millisecond), time.UTC)}
	m := newTestManager(t, Config{Clock: clock.now})

	// Exhaust the window just before the boundary.
	for i := 0; i < 10; i++ {
		m.Check("X", "ai.analyze")
	}
	if d := m.Check("X", "ai.analyze"); d.Allowed {
		t.Fatal("Expected denial in exhausted window")
	}

	// 2ms later we are in a fresh window with a full allowance.
	clock.advance(2 * time.Millisecond)
	d := m.Check("X", "ai.analyze")
	if !d.Allowed {
		t.Fatal("Expected fresh window to admit")
	}
	if d.Remaining != 9 {
		t.Errorf("Expected remaining 9 in fresh window, got %d", d.Remaining)
	}
}

func TestCheck_MultiWindowRule(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	sink := &captureSink{}
	m := newTestManager(t, Config{
		Rules: []Rule{{
			Tier:     "expensive",
			Windows:  []Window{{Max: 5, Duration: time.Minute}, {Max: 8, Duration: time.Hour}},
			Patterns: []string{"ai.*"},
		}},
		DefaultTier: "expensive",
		Violations:  sink,
		Clock:       clock.now,
	})

	// Minute 1: five pass, sixth trips the short window.
	for i := 0; i < 5; i++ {
		if d := m.Check("X", "ai.analyze"); !d.Allowed {
			t.Fatalf("Request %d unexpectedly denied", i+1)
		}
	}
	d := m.Check("X", "ai.analyze")
	if d.Allowed {
		t.Fatal("Expected short window to deny")
	}
	if records := sink.all(); len(records) != 1 || records[0].Window != time.Minute {
		t.Fatal("Expected violation on the minute window")
	}

	// Next minute: the short window is fresh, but the hour window has
	// counted all six attempts (denied ones advance it too), so only
	// two more pass before the hour limit of 8 trips.
	clock.advance(time.Minute)
	for i := 0; i < 2; i++ {
		if d := m.Check("X", "ai.analyze"); !d.Allowed {
			t.Fatalf("Expected request %d in new minute to pass", i+1)
		}
	}
	d = m.Check("X", "ai.analyze")
	if d.Allowed {
		t.Fatal("Expected hour window to deny")
	}
	records := sink.all()
	if last := records[len(records)-1]; last.Window != time.Hour {
		t.Errorf("Expected violation on the hour window, got %v", last.Window)
	}
}

func TestCheck_GlobalScopeSharesCounter(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestManager(t, Config{
		Rules: []Rule{{
			Tier:     "expensive",
			Scope:    ScopeGlobal,
			Windows:  []Window{{Max: 3, Duration: time.Minute}},
			Patterns: []string{"ai.*"},
		}},
		DefaultTier: "expensive",
		Clock:       clock.now,
	})

	m.Check("alice", "ai.analyze")
	m.Check("bob", "ai.analyze")
	m.Check("carol", "ai.analyze")

	if d := m.Check("dave", "ai.analyze"); d.Allowed {
		t.Error("Expected global counter shared across identities to deny")
	}
}

// ============================================================================
// Failure Policy Tests
// ============================================================================

func TestCheck_FailsClosedOnStoreError(t *testing.T) {
	m := newTestManager(t, Config{Store: faultyStore{}})

	d := m.Check("X", "ai.analyze")
	if d.Allowed {
		t.Error("Expected fail-closed denial on store error")
	}
	if d.Remaining != 0 {
		t.Errorf("Expected remaining 0, got %d", d.Remaining)
	}
	if d.ResetAt.IsZero() {
		t.Error("Expected a usable ResetAt on fail-closed denial")
	}
}

func TestCheck_FailsClosedOnStorePanic(t *testing.T) {
	m := newTestManager(t, Config{Store: panickyStore{}})

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Check propagated a panic: %v", r)
		}
	}()

	d := m.Check("X", "ai.analyze")
	if d.Allowed {
		t.Error("Expected fail-closed denial on store panic")
	}
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestCheck_ConcurrentSameIdentity(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	store := counter.NewSharded(counter.DefaultShardCount)
	m := newTestManager(t, Config{
		Rules: []Rule{{
			Tier:     "expensive",
			Windows:  []Window{{Max: 100, Duration: time.Minute}},
			Patterns: []string{"ai.*"},
		}},
		DefaultTier: "expensive",
		Store:       store,
		Clock:       clock.now,
	})

	const n = 1000
	allowed := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- m.Check("X", "ai.analyze").Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	admitted := 0
	for a := range allowed {
		if a {
			admitted++
		}
	}
	if admitted != 100 {
		t.Errorf("Expected exactly 100 admitted, got %d", admitted)
	}

	key := counter.NewKey("X", "expensive", clock.now(), time.Minute)
	if got := store.Count(key); got != n {
		t.Errorf("Expected final counter %d, got %d", n, got)
	}
}

// ============================================================================
// Rule Reload Tests
// ============================================================================

func TestReplaceRules(t *testing.T) {
	m := newTestManager(t, Config{})

	if d := m.Check("X", "ai.analyze"); d.Tier != "expensive" {
		t.Fatalf("Expected tier expensive before reload, got %q", d.Tier)
	}

	rs, err := NewRuleSet([]Rule{{
		Tier:     "relaxed",
		Windows:  []Window{{Max: 100, Duration: time.Minute}},
		Patterns: []string{"ai.*"},
	}}, "relaxed")
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}
	m.ReplaceRules(rs)

	if d := m.Check("X", "ai.analyze"); d.Tier != "relaxed" {
		t.Errorf("Expected tier relaxed after reload, got %q", d.Tier)
	}
}
