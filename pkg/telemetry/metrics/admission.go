package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// AdmissionMetrics tracks metrics for the admission path.
//
// Metrics:
//   - ganymede_admission_checks_total: Decision count by tier and outcome
//   - ganymede_admission_check_duration_seconds: Check latency histogram
//   - ganymede_admission_violations_total: Violations by tier and endpoint
//   - ganymede_admission_store_faults_total: Counter store faults (fail-closed)
//   - ganymede_admission_rules_reloads_total: Rule reloads by result
type AdmissionMetrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec

	violationsTotal *prometheus.CounterVec

	storeFaultsTotal prometheus.Counter

	rulesReloadsTotal *prometheus.CounterVec
}

// NewAdmissionMetrics creates and registers admission metrics with the
// provided registry.
func NewAdmissionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AdmissionMetrics {
	am := &AdmissionMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_checks_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"tier", "outcome"},
		),

		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_check_duration_seconds",
				Help:      "Duration of admission checks in seconds",
				Buckets:   cfg.CheckDurationBuckets,
			},
			[]string{"tier"},
		),

		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_violations_total",
				Help:      "Total number of rate limit violations",
			},
			[]string{"tier", "endpoint"},
		),

		storeFaultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_store_faults_total",
				Help:      "Total number of counter store faults handled fail-closed",
			},
		),

		rulesReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_rules_reloads_total",
				Help:      "Total number of rule reload attempts",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		am.checksTotal,
		am.checkDuration,
		am.violationsTotal,
		am.storeFaultsTotal,
		am.rulesReloadsTotal,
	)

	return am
}

// ObserveCheck records one admission decision.
func (am *AdmissionMetrics) ObserveCheck(tier string, allowed bool, duration time.Duration) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	am.checksTotal.WithLabelValues(tier, outcome).Inc()
	am.checkDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveStoreFault records a counter store fault.
func (am *AdmissionMetrics) ObserveStoreFault() {
	am.storeFaultsTotal.Inc()
}

// RecordViolation records a rate limit violation.
func (am *AdmissionMetrics) RecordViolation(tier, endpoint string) {
	am.violationsTotal.WithLabelValues(tier, endpoint).Inc()
}

// RecordRulesReload records a rule reload attempt.
func (am *AdmissionMetrics) RecordRulesReload(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	am.rulesReloadsTotal.WithLabelValues(result).Inc()
}
