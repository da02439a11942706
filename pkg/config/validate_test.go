package config

import (
	"strings"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/admission"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Admission.Rules = []admission.Rule{
		{
			Tier:     "cheap",
			Windows:  []admission.Window{{Max: 1000, Duration: time.Minute}},
			Patterns: []string{"*"},
		},
	}
	cfg.Admission.DefaultTier = "cheap"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		errorField string
	}{
		{
			name:       "empty listen address",
			mutate:     func(c *Config) { c.Server.ListenAddress = "" },
			errorField: "server.listen_address",
		},
		{
			name:       "negative read timeout",
			mutate:     func(c *Config) { c.Server.ReadTimeout = -time.Second },
			errorField: "server.read_timeout",
		},
		{
			name:       "empty default tier",
			mutate:     func(c *Config) { c.Admission.DefaultTier = "" },
			errorField: "admission.default_tier",
		},
		{
			name:       "no rules without rules path",
			mutate:     func(c *Config) { c.Admission.Rules = nil },
			errorField: "admission.rules",
		},
		{
			name: "default tier not in rule table",
			mutate: func(c *Config) {
				c.Admission.DefaultTier = "platinum"
			},
			errorField: "admission.rules",
		},
		{
			name: "invalid rule windows",
			mutate: func(c *Config) {
				c.Admission.Rules[0].Windows = []admission.Window{{Max: 0, Duration: time.Minute}}
			},
			errorField: "admission.rules",
		},
		{
			name:       "watch without rules path",
			mutate:     func(c *Config) { c.Admission.Watch = true },
			errorField: "admission.watch",
		},
		{
			name: "invalid trusted proxy CIDR",
			mutate: func(c *Config) {
				c.Admission.Identity.TrustedProxies = []string{"not-a-cidr"}
			},
			errorField: "admission.identity.trusted_proxies[0]",
		},
		{
			name: "critical below warning",
			mutate: func(c *Config) {
				c.Monitor.WarningBytes = 100
				c.Monitor.CriticalBytes = 50
			},
			errorField: "monitor.critical_bytes",
		},
		{
			name:       "unsupported analytics backend",
			mutate:     func(c *Config) { c.Analytics.Backend = "postgres" },
			errorField: "analytics.backend",
		},
		{
			name: "sqlite backend without path",
			mutate: func(c *Config) {
				c.Analytics.SQLite.Path = ""
			},
			errorField: "analytics.sqlite.path",
		},
		{
			name:       "unsupported sqlite driver",
			mutate:     func(c *Config) { c.Analytics.SQLite.Driver = "mysql" },
			errorField: "analytics.sqlite.driver",
		},
		{
			name:       "sample rate above one",
			mutate:     func(c *Config) { c.Analytics.Recorder.SampleRate = 1.5 },
			errorField: "analytics.recorder.sample_rate",
		},
		{
			name:       "invalid report schedule",
			mutate:     func(c *Config) { c.Analytics.Reports.Schedule = "not a cron" },
			errorField: "analytics.reports.schedule",
		},
		{
			name:       "invalid prune schedule",
			mutate:     func(c *Config) { c.Analytics.Reports.PruneSchedule = "99 99 * * *" },
			errorField: "analytics.reports.prune_schedule",
		},
		{
			name:       "invalid log level",
			mutate:     func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			errorField: "telemetry.logging.level",
		},
		{
			name:       "invalid log format",
			mutate:     func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			errorField: "telemetry.logging.format",
		},
		{
			name:       "metrics path without slash",
			mutate:     func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			errorField: "telemetry.metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorField) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.errorField, err)
			}
		})
	}
}

func TestValidate_EmptySchedulesDisableJobs(t *testing.T) {
	cfg := validConfig()
	cfg.Analytics.Reports.Schedule = ""
	cfg.Analytics.Reports.PruneSchedule = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected empty schedules to validate, got: %v", err)
	}
}

func TestValidate_DisabledAnalyticsSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Analytics.Enabled = false
	cfg.Analytics.Backend = "postgres"
	cfg.Analytics.Reports.Schedule = "garbage"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected disabled analytics to skip validation, got: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Telemetry.Logging.Level = "verbose"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("Expected 2 field errors, got %d", len(verr.Errors))
	}
}
