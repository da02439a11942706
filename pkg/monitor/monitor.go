// Package monitor provides the background resource monitor for the
// admission counter store: periodic expiry sweeps, memory estimation,
// and threshold alerting. It never blocks or touches the request path.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/admission/counter"
)

// AlertLevel classifies a memory threshold alert.
type AlertLevel string

const (
	// LevelWarning indicates estimated usage crossed warning_bytes.
	LevelWarning AlertLevel = "warning"

	// LevelCritical indicates estimated usage crossed critical_bytes.
	LevelCritical AlertLevel = "critical"
)

// Alert is one threshold crossing observed by a tick.
type Alert struct {
	Level          AlertLevel `json:"level"`
	Timestamp      time.Time  `json:"timestamp"`
	EstimatedBytes int64      `json:"estimated_bytes"`
	ThresholdBytes int64      `json:"threshold_bytes"`
	ActiveKeys     int        `json:"active_keys"`
}

// Status is the monitor's current view, served by the metrics read
// API.
type Status struct {
	EstimatedBytes   int64     `json:"estimated_bytes"`
	ActiveKeys       int       `json:"active_keys"`
	LastTickAt       time.Time `json:"last_tick_at"`
	LastSweepRemoved int       `json:"last_sweep_removed"`
	TicksCompleted   int64     `json:"ticks_completed"`
	RecentAlerts     []Alert   `json:"recent_alerts"`
}

// MetricsHook receives per-tick observations. Implemented by
// telemetry/metrics; nil disables instrumentation.
type MetricsHook interface {
	ObserveSweep(removed, activeKeys int, estimatedBytes int64)
	ObserveAlert(level string)
}

// Config contains configuration for the resource monitor.
type Config struct {
	// Interval is the tick period.
	// Default: 60 seconds
	Interval time.Duration

	// WarningBytes and CriticalBytes are the alert thresholds applied
	// to the store's memory estimate. Zero disables a threshold.
	WarningBytes  int64
	CriticalBytes int64

	// HistorySize bounds the retained alert history.
	// Default: 32
	HistorySize int

	// OnAlert, when set, is invoked for every alert in addition to the
	// structured log line. Called from the tick goroutine; must not
	// block.
	OnAlert func(Alert)

	// Metrics receives tick observations. Nil disables them.
	Metrics MetricsHook
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:      60 * time.Second,
		WarningBytes:  64 << 20,  // 64 MiB
		CriticalBytes: 256 << 20, // 256 MiB
		HistorySize:   32,
	}
}

// Monitor periodically sweeps expired counters and raises memory
// threshold alerts. Safe to run concurrently with live traffic: the
// sweep only removes expired entries and locks one shard at a time.
type Monitor struct {
	store  counter.Store
	config *Config
	logger *slog.Logger

	mu               sync.RWMutex
	lastTickAt       time.Time
	lastSweepRemoved int
	ticksCompleted   int64
	alerts           []Alert

	wg sync.WaitGroup
}

// New creates a monitor over the given counter store.
func New(store counter.Store, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.HistorySize <= 0 {
		config.HistorySize = 32
	}
	return &Monitor{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "monitor"),
	}
}

// Start runs the tick loop until ctx is canceled. It returns
// immediately; the loop runs on its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.logger.Info("resource monitor started",
			"interval", m.config.Interval,
			"warning_bytes", m.config.WarningBytes,
			"critical_bytes", m.config.CriticalBytes,
		)

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Tick(time.Now())
			case <-ctx.Done():
				m.logger.Info("resource monitor stopped")
				return
			}
		}
	}()
}

// Wait blocks until the tick loop has exited after cancellation.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Tick runs one monitoring cycle: sweep, estimate, threshold check.
// A fault inside a tick is recovered and logged; the next scheduled
// tick runs regardless.
func (m *Monitor) Tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic during monitor tick, continuing", "panic", r)
		}
	}()

	removed := m.store.Sweep(now)
	estimated := m.store.EstimateMemoryBytes()
	activeKeys := m.store.Len()

	m.mu.Lock()
	m.lastTickAt = now
	m.lastSweepRemoved = removed
	m.ticksCompleted++
	m.mu.Unlock()

	if m.config.Metrics != nil {
		m.config.Metrics.ObserveSweep(removed, activeKeys, estimated)
	}

	m.logger.Debug("monitor tick",
		"swept", removed,
		"active_keys", activeKeys,
		"estimated_bytes", estimated,
	)

	// Raise at most one alert per tick, at the highest crossed level.
	switch {
	case m.config.CriticalBytes > 0 && estimated >= m.config.CriticalBytes:
		m.raise(Alert{
			Level:          LevelCritical,
			Timestamp:      now,
			EstimatedBytes: estimated,
			ThresholdBytes: m.config.CriticalBytes,
			ActiveKeys:     activeKeys,
		})
	case m.config.WarningBytes > 0 && estimated >= m.config.WarningBytes:
		m.raise(Alert{
			Level:          LevelWarning,
			Timestamp:      now,
			EstimatedBytes: estimated,
			ThresholdBytes: m.config.WarningBytes,
			ActiveKeys:     activeKeys,
		})
	}
}

// raise records an alert, logs it, and notifies the callback.
func (m *Monitor) raise(alert Alert) {
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > m.config.HistorySize {
		m.alerts = m.alerts[len(m.alerts)-m.config.HistorySize:]
	}
	m.mu.Unlock()

	m.logger.Warn("counter store memory threshold exceeded",
		"level", alert.Level,
		"estimated_bytes", alert.EstimatedBytes,
		"threshold_bytes", alert.ThresholdBytes,
		"active_keys", alert.ActiveKeys,
	)

	if m.config.Metrics != nil {
		m.config.Metrics.ObserveAlert(string(alert.Level))
	}

	if m.config.OnAlert != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("panic in alert callback", "panic", r)
				}
			}()
			m.config.OnAlert(alert)
		}()
	}
}

// Status returns the monitor's current view, including recent alert
// history (newest last).
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]Alert, len(m.alerts))
	copy(alerts, m.alerts)

	return Status{
		EstimatedBytes:   m.store.EstimateMemoryBytes(),
		ActiveKeys:       m.store.Len(),
		LastTickAt:       m.lastTickAt,
		LastSweepRemoved: m.lastSweepRemoved,
		TicksCompleted:   m.ticksCompleted,
		RecentAlerts:     alerts,
	}
}
