package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Admission defaults
	DefaultTierName   = "standard"
	DefaultShardCount = 64

	// Monitor defaults
	DefaultMonitorInterval      = 60 * time.Second
	DefaultMonitorWarningBytes  = int64(64 << 20)
	DefaultMonitorCriticalBytes = int64(256 << 20)
	DefaultMonitorHistorySize   = 32

	// Analytics defaults
	DefaultAnalyticsEnabled     = true
	DefaultAnalyticsBackend     = "sqlite"
	DefaultSQLitePath           = "data/analytics.db"
	DefaultSQLiteDriver         = "sqlite3"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteWALMode        = true
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultRecorderQueueSize    = 1000
	DefaultRecorderSampleRate   = 1.0
	DefaultRecorderBatchSize    = 64
	DefaultRecorderFlush        = time.Second
	DefaultRecorderWriteTimeout = 5 * time.Second
	DefaultRecorderShutdown     = 5 * time.Second
	DefaultReportSchedule       = "0 2 * * *"
	DefaultPruneSchedule        = "0 3 * * *"
	DefaultRetentionDays        = 30
	DefaultReportWindow         = 24 * time.Hour
	DefaultReportTopCandidates  = 20

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"
)

// DefaultConfig returns a fully defaulted configuration. Loading
// starts from this value so that boolean fields default to enabled
// unless the file sets them to false explicitly.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Analytics.Enabled = DefaultAnalyticsEnabled
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Analytics.SQLite.WALMode = DefaultSQLiteWALMode
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Admission defaults
	if cfg.Admission.DefaultTier == "" {
		cfg.Admission.DefaultTier = DefaultTierName
	}
	if cfg.Admission.ShardCount == 0 {
		cfg.Admission.ShardCount = DefaultShardCount
	}

	// Monitor defaults
	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = DefaultMonitorInterval
	}
	if cfg.Monitor.WarningBytes == 0 {
		cfg.Monitor.WarningBytes = DefaultMonitorWarningBytes
	}
	if cfg.Monitor.CriticalBytes == 0 {
		cfg.Monitor.CriticalBytes = DefaultMonitorCriticalBytes
	}
	if cfg.Monitor.HistorySize == 0 {
		cfg.Monitor.HistorySize = DefaultMonitorHistorySize
	}

	// Analytics defaults
	if cfg.Analytics.Backend == "" {
		cfg.Analytics.Backend = DefaultAnalyticsBackend
	}
	if cfg.Analytics.SQLite.Path == "" {
		cfg.Analytics.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Analytics.SQLite.Driver == "" {
		cfg.Analytics.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Analytics.SQLite.MaxOpenConns == 0 {
		cfg.Analytics.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Analytics.SQLite.MaxIdleConns == 0 {
		cfg.Analytics.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Analytics.SQLite.BusyTimeout == 0 {
		cfg.Analytics.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Analytics.Recorder.QueueCapacity == 0 {
		cfg.Analytics.Recorder.QueueCapacity = DefaultRecorderQueueSize
	}
	if cfg.Analytics.Recorder.SampleRate == 0 {
		cfg.Analytics.Recorder.SampleRate = DefaultRecorderSampleRate
	}
	if cfg.Analytics.Recorder.BatchSize == 0 {
		cfg.Analytics.Recorder.BatchSize = DefaultRecorderBatchSize
	}
	if cfg.Analytics.Recorder.FlushInterval == 0 {
		cfg.Analytics.Recorder.FlushInterval = DefaultRecorderFlush
	}
	if cfg.Analytics.Recorder.WriteTimeout == 0 {
		cfg.Analytics.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if cfg.Analytics.Recorder.ShutdownGrace == 0 {
		cfg.Analytics.Recorder.ShutdownGrace = DefaultRecorderShutdown
	}
	if cfg.Analytics.Reports.Schedule == "" {
		cfg.Analytics.Reports.Schedule = DefaultReportSchedule
	}
	if cfg.Analytics.Reports.PruneSchedule == "" {
		cfg.Analytics.Reports.PruneSchedule = DefaultPruneSchedule
	}
	if cfg.Analytics.Reports.RetentionDays == 0 {
		cfg.Analytics.Reports.RetentionDays = DefaultRetentionDays
	}
	if cfg.Analytics.Reports.Window == 0 {
		cfg.Analytics.Reports.Window = DefaultReportWindow
	}
	if cfg.Analytics.Reports.TopCandidates == 0 {
		cfg.Analytics.Reports.TopCandidates = DefaultReportTopCandidates
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
