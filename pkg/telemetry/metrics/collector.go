// Package metrics provides Prometheus instrumentation for Ganymede:
// admission decisions, counter store health, and analytics pipeline
// throughput.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// Collector is the main orchestrator for all Prometheus metrics in
// Ganymede. It manages metric registration and provides a unified
// interface for recording metrics across all components.
//
// It is designed for minimal overhead on the admission path:
//   - Pre-allocated metric instances
//   - Cardinality limits on the endpoint label
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	admission *AdmissionMetrics
	store     *StoreMetrics
	analytics *AnalyticsMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "ganymede"
	}
	if len(cfg.CheckDurationBuckets) == 0 {
		// Admission checks are in-memory map operations; sub-millisecond
		// buckets dominate.
		cfg.CheckDurationBuckets = []float64{
			0.000005, 0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005,
		}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.admission = NewAdmissionMetrics(cfg, registry)
	c.store = NewStoreMetrics(cfg, registry)
	c.analytics = NewAnalyticsMetrics(cfg, registry)

	return c
}

// Admission returns the admission metric group. It satisfies the rate
// limit manager's metrics hook.
func (c *Collector) Admission() *AdmissionMetrics {
	return c.admission
}

// Store returns the counter store metric group. It satisfies the
// resource monitor's metrics hook.
func (c *Collector) Store() *StoreMetrics {
	return c.store
}

// Analytics returns the analytics pipeline metric group.
func (c *Collector) Analytics() *AnalyticsMetrics {
	return c.analytics
}

// RecordViolation records a rate limit violation for the given tier
// and endpoint. The endpoint label is capped by the cardinality
// limiter; once the cap is reached new endpoints aggregate into
// "other".
func (c *Collector) RecordViolation(tier, endpoint string) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("violation:%s:%s", tier, endpoint)
	if !c.cardinalityLimiter.Allow(labelSet) {
		endpoint = "other"
	}

	c.admission.RecordViolation(tier, endpoint)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the
// specified maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label
// set already exists or if the cardinality limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
