package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// StoreMetrics tracks counter store health, updated by the resource
// monitor on each tick.
//
// Metrics:
//   - ganymede_store_active_keys: Live counter entries
//   - ganymede_store_estimated_bytes: Estimated memory usage
//   - ganymede_store_swept_total: Entries removed by sweeps
//   - ganymede_store_alerts_total: Memory threshold alerts by level
type StoreMetrics struct {
	activeKeys     prometheus.Gauge
	estimatedBytes prometheus.Gauge
	sweptTotal     prometheus.Counter
	alertsTotal    *prometheus.CounterVec
}

// NewStoreMetrics creates and registers counter store metrics with the
// provided registry.
func NewStoreMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StoreMetrics {
	sm := &StoreMetrics{
		activeKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_active_keys",
				Help:      "Number of live counter entries",
			},
		),

		estimatedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_estimated_bytes",
				Help:      "Estimated counter store memory usage in bytes",
			},
		),

		sweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_swept_total",
				Help:      "Total number of expired entries removed by sweeps",
			},
		),

		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_alerts_total",
				Help:      "Total number of memory threshold alerts",
			},
			[]string{"level"},
		),
	}

	registry.MustRegister(
		sm.activeKeys,
		sm.estimatedBytes,
		sm.sweptTotal,
		sm.alertsTotal,
	)

	return sm
}

// ObserveSweep records the outcome of one monitor tick.
func (sm *StoreMetrics) ObserveSweep(removed, activeKeys int, estimatedBytes int64) {
	sm.sweptTotal.Add(float64(removed))
	sm.activeKeys.Set(float64(activeKeys))
	sm.estimatedBytes.Set(float64(estimatedBytes))
}

// ObserveAlert records a memory threshold alert.
func (sm *StoreMetrics) ObserveAlert(level string) {
	sm.alertsTotal.WithLabelValues(level).Inc()
}
