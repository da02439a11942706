package main

import (
	"fmt"

	"mercator-hq/ganymede/pkg/analytics"
	"mercator-hq/ganymede/pkg/analytics/storage"
	"mercator-hq/ganymede/pkg/config"
)

// openAnalyticsStorage opens the analytics backend for offline
// commands. An explicit backend overrides the configured one.
func openAnalyticsStorage(backend string) (analytics.Storage, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if backend == "" {
		backend = cfg.Analytics.Backend
	}

	switch backend {
	case "sqlite":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.Analytics.SQLite.Path,
			Driver:       cfg.Analytics.SQLite.Driver,
			MaxOpenConns: cfg.Analytics.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Analytics.SQLite.MaxIdleConns,
			WALMode:      cfg.Analytics.SQLite.WALMode,
			BusyTimeout:  cfg.Analytics.SQLite.BusyTimeout,
		})
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported analytics backend: %s", backend)
	}
}
