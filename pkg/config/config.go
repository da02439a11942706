// Package config provides configuration management for Ganymede.
//
// Configuration is loaded from a YAML file, defaults are applied to
// unset fields, environment variables (GANYMEDE_*) may override file
// values, and the final result is validated before use. Invalid
// configuration is a startup-fatal error.
package config

import (
	"time"

	"mercator-hq/ganymede/pkg/admission"
)

// Config is the root configuration structure for Ganymede.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Admission contains rate limiting configuration.
	Admission AdmissionConfig `yaml:"admission"`

	// Monitor contains resource monitor configuration.
	Monitor MonitorConfig `yaml:"monitor"`

	// Analytics contains violation and query analytics configuration.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address to bind the server to.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request
	// on a keep-alive connection.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AdmissionConfig contains rate limiting settings.
type AdmissionConfig struct {
	// DefaultTier names the tier applied to endpoints no rule matches.
	DefaultTier string `yaml:"default_tier"`

	// ShardCount is the number of counter store shards. Rounded up to
	// a power of two.
	ShardCount int `yaml:"shard_count"`

	// RulesPath, when set, names a standalone YAML rules file loaded
	// at startup and hot-reloaded on change when Watch is true. When
	// empty, the inline Rules below are used.
	RulesPath string `yaml:"rules_path"`

	// Watch enables hot reload of the rules file.
	Watch bool `yaml:"watch"`

	// Rules is the inline rule table. Ignored when RulesPath is set.
	Rules []admission.Rule `yaml:"rules"`

	// Identity controls client identity resolution.
	Identity admission.IdentityConfig `yaml:"identity"`
}

// MonitorConfig contains resource monitor settings.
type MonitorConfig struct {
	// Interval is the monitor tick period.
	Interval time.Duration `yaml:"interval"`

	// WarningBytes is the memory estimate that raises a warning alert.
	WarningBytes int64 `yaml:"warning_bytes"`

	// CriticalBytes is the memory estimate that raises a critical
	// alert.
	CriticalBytes int64 `yaml:"critical_bytes"`

	// HistorySize bounds the retained alert history.
	HistorySize int `yaml:"history_size"`
}

// AnalyticsConfig contains violation and query analytics settings.
type AnalyticsConfig struct {
	// Enabled controls whether analytics recording is active.
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend: "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder contains async recorder settings.
	Recorder RecorderConfig `yaml:"recorder"`

	// Reports contains cache report and retention settings.
	Reports ReportsConfig `yaml:"reports"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// Driver selects the registered driver: "sqlite3" (cgo) or
	// "sqlite" (pure Go).
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the SQLite busy timeout.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig contains async analytics recorder settings.
type RecorderConfig struct {
	// QueueCapacity bounds the in-memory queue.
	QueueCapacity int `yaml:"queue_capacity"`

	// SampleRate is the query sample probability in [0.0, 1.0].
	SampleRate float64 `yaml:"sample_rate"`

	// BatchSize is the number of items written per storage call.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// WriteTimeout bounds each storage write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownGrace bounds the final drain on close.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// ReportsConfig contains cache analysis report and retention settings.
type ReportsConfig struct {
	// Schedule is the cron expression for report generation.
	Schedule string `yaml:"schedule"`

	// PruneSchedule is the cron expression for retention pruning.
	PruneSchedule string `yaml:"prune_schedule"`

	// RetentionDays is how long violations and samples are kept.
	RetentionDays int `yaml:"retention_days"`

	// Window is the sample window each report covers.
	Window time.Duration `yaml:"window"`

	// TopCandidates caps the number of candidates per report.
	TopCandidates int `yaml:"top_candidates"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is the output format: json or text.
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric name subsystem component.
	Subsystem string `yaml:"subsystem"`

	// CheckDurationBuckets overrides the admission check duration
	// histogram buckets.
	CheckDurationBuckets []float64 `yaml:"check_duration_buckets"`
}

// RulesFile is the on-disk format of a standalone rules file,
// referenced by admission.rules_path and hot-reloaded on change.
type RulesFile struct {
	// DefaultTier overrides admission.default_tier when set.
	DefaultTier string `yaml:"default_tier"`

	// Rules is the rule table.
	Rules []admission.Rule `yaml:"rules"`
}
