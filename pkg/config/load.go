package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Start from defaults so absent boolean keys keep their enabled
	// defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow
// the naming convention GANYMEDE_SECTION_FIELD (e.g.,
// GANYMEDE_SERVER_LISTEN_ADDRESS). Environment variables always take
// precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadRulesFile loads a standalone rules file. The result carries the
// rule table plus an optional default tier override. Used both at
// startup and by the hot reload watcher.
func LoadRulesFile(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}

	return &rf, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format
// GANYMEDE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("GANYMEDE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("GANYMEDE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Admission overrides
	if val := os.Getenv("GANYMEDE_ADMISSION_DEFAULT_TIER"); val != "" {
		cfg.Admission.DefaultTier = val
	}
	if val := os.Getenv("GANYMEDE_ADMISSION_SHARD_COUNT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Admission.ShardCount = i
		}
	}
	if val := os.Getenv("GANYMEDE_ADMISSION_RULES_PATH"); val != "" {
		cfg.Admission.RulesPath = val
	}
	if val := os.Getenv("GANYMEDE_ADMISSION_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Admission.Watch = b
		}
	}
	if val := os.Getenv("GANYMEDE_ADMISSION_TRUST_PROXY_HEADERS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Admission.Identity.TrustProxyHeaders = b
		}
	}

	// Monitor overrides
	if val := os.Getenv("GANYMEDE_MONITOR_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if val := os.Getenv("GANYMEDE_MONITOR_WARNING_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Monitor.WarningBytes = i
		}
	}
	if val := os.Getenv("GANYMEDE_MONITOR_CRITICAL_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Monitor.CriticalBytes = i
		}
	}

	// Analytics overrides
	if val := os.Getenv("GANYMEDE_ANALYTICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_ANALYTICS_BACKEND"); val != "" {
		cfg.Analytics.Backend = val
	}
	if val := os.Getenv("GANYMEDE_ANALYTICS_SQLITE_PATH"); val != "" {
		cfg.Analytics.SQLite.Path = val
	}
	if val := os.Getenv("GANYMEDE_ANALYTICS_SQLITE_DRIVER"); val != "" {
		cfg.Analytics.SQLite.Driver = val
	}
	if val := os.Getenv("GANYMEDE_ANALYTICS_SAMPLE_RATE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Analytics.Recorder.SampleRate = f
		}
	}
	if val := os.Getenv("GANYMEDE_ANALYTICS_QUEUE_CAPACITY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Analytics.Recorder.QueueCapacity = i
		}
	}
	if val := os.Getenv("GANYMEDE_ANALYTICS_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Analytics.Reports.RetentionDays = i
		}
	}
	if val := os.Getenv("GANYMEDE_ANALYTICS_REPORT_SCHEDULE"); val != "" {
		cfg.Analytics.Reports.Schedule = val
	}

	// Telemetry overrides
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
