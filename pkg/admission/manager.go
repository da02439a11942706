package admission

import (
	"log/slog"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/admission/counter"
	"mercator-hq/ganymede/pkg/analytics"
)

// Decision is the admission verdict returned to the caller. On denial
// it carries enough information to build a proper rate limit response
// (HTTP 429 with Retry-After); internal fault details are never
// surfaced through it.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Tier is the rule that governed the decision.
	Tier string `json:"tier"`

	// Limit is the max count of the decisive window: the tripped one
	// on denial, otherwise the window with the fewest remaining.
	Limit int `json:"limit"`

	// Remaining is how many requests are left in the decisive window.
	// Zero on denial.
	Remaining int `json:"remaining"`

	// ResetAt is when the decisive window rolls over.
	ResetAt time.Time `json:"reset_at"`

	// RetryAfter is ResetAt minus now, floored at zero.
	RetryAfter time.Duration `json:"retry_after"`
}

// ViolationSink receives violation records on denial. The enqueue must
// be non-blocking; the analytics recorder satisfies this.
type ViolationSink interface {
	RecordViolation(*analytics.ViolationRecord)
}

// MetricsHook receives per-decision observations. Implemented by
// telemetry/metrics; nil disables instrumentation.
type MetricsHook interface {
	ObserveCheck(tier string, allowed bool, duration time.Duration)
	ObserveStoreFault()
}

// Config contains configuration for the rate limit manager.
type Config struct {
	// Rules is the static tier table.
	Rules []Rule

	// DefaultTier names the rule applied to endpoints no pattern
	// matches. Required.
	DefaultTier string

	// ShardCount sizes the counter store when Store is nil.
	// Default: counter.DefaultShardCount
	ShardCount int

	// Store overrides the counter store. Nil builds a sharded store.
	Store counter.Store

	// Violations receives a record per denial. Nil disables analytics.
	Violations ViolationSink

	// Metrics receives decision observations. Nil disables them.
	Metrics MetricsHook

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Manager resolves endpoints to tier rules and makes admission
// decisions against the counter store. Safe for concurrent use by any
// number of request-handling goroutines.
type Manager struct {
	store   counter.Store
	rules   atomic.Pointer[RuleSet]
	sink    ViolationSink
	metrics MetricsHook
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager validates the rule set and creates a manager. A rule set
// that could admit unlimited traffic (no default tier, no rules) is a
// construction-time error, never a runtime fallback.
func NewManager(config Config) (*Manager, error) {
	rs, err := NewRuleSet(config.Rules, config.DefaultTier)
	if err != nil {
		return nil, err
	}

	store := config.Store
	if store == nil {
		store = counter.NewSharded(config.ShardCount)
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		store:   store,
		sink:    config.Violations,
		metrics: config.Metrics,
		logger:  slog.Default().With("component", "admission.manager"),
		now:     now,
	}
	m.rules.Store(rs)

	m.logger.Info("admission manager initialized",
		"tiers", rs.Tiers(),
		"default_tier", config.DefaultTier,
	)

	return m, nil
}

// Store exposes the underlying counter store for the resource monitor.
func (m *Manager) Store() counter.Store {
	return m.store
}

// Rules returns the active rule set.
func (m *Manager) Rules() *RuleSet {
	return m.rules.Load()
}

// ReplaceRules atomically swaps in a new rule set. In-flight checks
// finish against the set they resolved; new checks see the new rules.
// Counters are keyed by tier name, so tiers present in both sets keep
// their window history across a reload.
func (m *Manager) ReplaceRules(rs *RuleSet) {
	m.rules.Store(rs)
	m.logger.Info("admission rules replaced", "tiers", rs.Tiers())
}

// Check makes the admission decision for one request attempt.
//
// Every window of the resolved rule is incremented on every call,
// admitted or not, so long-window counts stay accurate regardless of
// short-window outcomes. The first window (in ascending duration
// order) whose count exceeds its max denies the request.
//
// Check never returns an error and never panics: internal faults
// resolve to a denied decision (fail closed) with a fault log entry.
func (m *Manager) Check(identity, endpoint string) (decision Decision) {
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic during admission check, failing closed",
				"endpoint", endpoint,
				"panic", r,
			)
			if m.metrics != nil {
				m.metrics.ObserveStoreFault()
			}
			decision = m.failClosed(endpoint, start)
		}
		if m.metrics != nil {
			m.metrics.ObserveCheck(decision.Tier, decision.Allowed, time.Since(start))
		}
	}()

	rule := m.rules.Load().Resolve(endpoint)

	counterIdentity := identity
	if rule.Scope == ScopeGlobal {
		counterIdentity = globalIdentity
	}

	type windowState struct {
		window  Window
		count   int64
		resetAt time.Time
	}
	states := make([]windowState, 0, len(rule.Windows))
	var tripped *windowState

	for _, w := range rule.Windows {
		key := counter.NewKey(counterIdentity, rule.Tier, start, w.Duration)
		windowStart := time.Unix(0, key.WindowStart)
		resetAt := windowStart.Add(w.Duration)

		// Grace of two extra window lengths keeps a just-closed window
		// countable until the sweep after next.
		expiresAt := resetAt.Add(2 * w.Duration)

		count, allowed, err := m.store.IncrementAndCheck(key, expiresAt, w.Max)
		if err != nil {
			m.logger.Error("counter store fault, failing closed",
				"endpoint", endpoint,
				"tier", rule.Tier,
				"error", err,
			)
			if m.metrics != nil {
				m.metrics.ObserveStoreFault()
			}
			return m.failClosed(endpoint, start)
		}

		states = append(states, windowState{window: w, count: count, resetAt: resetAt})
		if !allowed && tripped == nil {
			tripped = &states[len(states)-1]
		}
	}

	if tripped != nil {
		m.recordViolation(identity, endpoint, rule, tripped.window, tripped.count, start)
		return Decision{
			Allowed:    false,
			Tier:       rule.Tier,
			Limit:      tripped.window.Max,
			Remaining:  0,
			ResetAt:    tripped.resetAt,
			RetryAfter: tripped.resetAt.Sub(start),
		}
	}

	// All windows passed: report the tightest one.
	decisive := states[0]
	decisiveRemaining := decisive.window.Max - int(decisive.count)
	for _, st := range states[1:] {
		if remaining := st.window.Max - int(st.count); remaining < decisiveRemaining {
			decisive = st
			decisiveRemaining = remaining
		}
	}
	if decisiveRemaining < 0 {
		decisiveRemaining = 0
	}

	return Decision{
		Allowed:    true,
		Tier:       rule.Tier,
		Limit:      decisive.window.Max,
		Remaining:  decisiveRemaining,
		ResetAt:    decisive.resetAt,
		RetryAfter: 0,
	}
}

// failClosed builds the denial returned on internal faults. ResetAt is
// a conservative one-window-out hint based on the resolved rule's
// shortest window.
func (m *Manager) failClosed(endpoint string, now time.Time) Decision {
	rule := m.rules.Load().Resolve(endpoint)
	wait := rule.Windows[0].Duration
	return Decision{
		Allowed:    false,
		Tier:       rule.Tier,
		Limit:      rule.Windows[0].Max,
		Remaining:  0,
		ResetAt:    now.Add(wait),
		RetryAfter: wait,
	}
}

// recordViolation hands a violation record to the analytics sink.
// The sink's enqueue is non-blocking, so this adds no I/O latency to
// the decision path.
func (m *Manager) recordViolation(identity, endpoint string, rule *Rule, w Window, count int64, now time.Time) {
	if m.sink == nil {
		return
	}
	m.sink.RecordViolation(&analytics.ViolationRecord{
		Timestamp:    now,
		Endpoint:     endpoint,
		Identity:     identity,
		Tier:         rule.Tier,
		Window:       w.Duration,
		CurrentCount: count,
		LimitValue:   w.Max,
	})
}
