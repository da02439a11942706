package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/admission"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g.,
	// "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access
// to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any validation rules fail. It returns nil if the
// configuration is valid. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAdmission(&cfg.Admission)...)
	errs = append(errs, validateMonitor(&cfg.Monitor)...)
	errs = append(errs, validateAnalytics(&cfg.Analytics)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}

	return errs
}

// validateAdmission validates rate limiting configuration. Inline rules
// are compiled here so that every rule error is reported at startup
// with its position in the table.
func validateAdmission(cfg *AdmissionConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultTier == "" {
		errs = append(errs, FieldError{
			Field:   "admission.default_tier",
			Message: "default tier is required",
		})
	}
	if cfg.ShardCount < 0 {
		errs = append(errs, FieldError{
			Field:   "admission.shard_count",
			Message: "shard count must be positive",
		})
	}

	if cfg.RulesPath == "" {
		if len(cfg.Rules) == 0 {
			errs = append(errs, FieldError{
				Field:   "admission.rules",
				Message: "at least one rule is required when rules_path is not set",
			})
		} else if _, err := admission.NewRuleSet(cfg.Rules, cfg.DefaultTier); err != nil {
			errs = append(errs, FieldError{
				Field:   "admission.rules",
				Message: err.Error(),
			})
		}
	}
	if cfg.Watch && cfg.RulesPath == "" {
		errs = append(errs, FieldError{
			Field:   "admission.watch",
			Message: "watch requires rules_path to be set",
		})
	}

	for i, cidr := range cfg.Identity.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("admission.identity.trusted_proxies[%d]", i),
				Message: fmt.Sprintf("invalid CIDR %q", cidr),
			})
		}
	}

	return errs
}

// validateMonitor validates resource monitor configuration.
func validateMonitor(cfg *MonitorConfig) []FieldError {
	var errs []FieldError

	if cfg.Interval < 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.interval",
			Message: "interval must be positive",
		})
	}
	if cfg.WarningBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.warning_bytes",
			Message: "warning threshold must not be negative",
		})
	}
	if cfg.CriticalBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.critical_bytes",
			Message: "critical threshold must not be negative",
		})
	}
	if cfg.WarningBytes > 0 && cfg.CriticalBytes > 0 && cfg.CriticalBytes < cfg.WarningBytes {
		errs = append(errs, FieldError{
			Field:   "monitor.critical_bytes",
			Message: "critical threshold must not be below warning threshold",
		})
	}

	return errs
}

// validateAnalytics validates analytics configuration.
func validateAnalytics(cfg *AnalyticsConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "analytics.sqlite.path",
				Message: "path is required for sqlite backend",
			})
		}
		switch cfg.SQLite.Driver {
		case "sqlite3", "sqlite":
		default:
			errs = append(errs, FieldError{
				Field:   "analytics.sqlite.driver",
				Message: fmt.Sprintf("unsupported driver %q (must be sqlite3 or sqlite)", cfg.SQLite.Driver),
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "analytics.backend",
			Message: fmt.Sprintf("unsupported backend %q (must be sqlite or memory)", cfg.Backend),
		})
	}

	if cfg.Recorder.SampleRate < 0 || cfg.Recorder.SampleRate > 1 {
		errs = append(errs, FieldError{
			Field:   "analytics.recorder.sample_rate",
			Message: "sample rate must be between 0.0 and 1.0",
		})
	}
	if cfg.Recorder.QueueCapacity < 0 {
		errs = append(errs, FieldError{
			Field:   "analytics.recorder.queue_capacity",
			Message: "queue capacity must be positive",
		})
	}

	// An empty schedule disables the job, so only non-empty values
	// need to parse.
	if cfg.Reports.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Reports.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "analytics.reports.schedule",
				Message: fmt.Sprintf("invalid cron expression %q", cfg.Reports.Schedule),
			})
		}
	}
	if cfg.Reports.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Reports.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "analytics.reports.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q", cfg.Reports.PruneSchedule),
			})
		}
	}
	if cfg.Reports.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "analytics.reports.retention_days",
			Message: "retention days must not be negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	return errs
}
