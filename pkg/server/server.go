// Package server provides the Ganymede HTTP server: the admission
// middleware guarding the API surface, the analytics read API, and the
// operational endpoints (metrics, health probes, monitor status).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"mercator-hq/ganymede/pkg/admission"
	"mercator-hq/ganymede/pkg/analytics"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/monitor"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Options carries the wired components the server serves.
type Options struct {
	Config *config.Config

	// Manager is the rate limit manager guarding the API routes.
	Manager *admission.Manager

	// Resolver resolves client identities for the admission middleware.
	Resolver *admission.IdentityResolver

	// Monitor serves the counter store status endpoint. Optional.
	Monitor *monitor.Monitor

	// Storage backs the violations and report read API. Optional.
	Storage analytics.Storage

	// Metrics serves the Prometheus endpoint. Optional.
	Metrics *metrics.Collector

	// Health serves the probe endpoints. Optional.
	Health *health.Checker

	// Version information for the /version endpoint.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the main Ganymede HTTP server.
type Server struct {
	opts       Options
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new server from wired components.
func NewServer(opts Options) *Server {
	return &Server{
		opts:   opts,
		logger: slog.Default().With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	cfg := s.opts.Config.Server
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server, draining in-flight
// requests up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		timeout := s.opts.Config.Server.ShutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler, for tests and for
// embedding the server into a host mux.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and the middleware chain. The
// /v1 API surface runs behind the admission middleware; operational
// endpoints stay outside it so probes and scrapes are never rate
// limited.
func (s *Server) setupRoutes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/violations", s.handleViolations)
	api.HandleFunc("/v1/reports/cache/latest", s.handleLatestReport)
	api.HandleFunc("/v1/monitor/status", s.handleMonitorStatus)
	api.HandleFunc("/v1/rules", s.handleRules)

	var guarded http.Handler = api
	if s.opts.Manager != nil && s.opts.Resolver != nil {
		guard := s.opts.Manager.Middleware(s.opts.Resolver, admission.PathEndpointNamer)
		guarded = guard(api)
	}

	root := http.NewServeMux()
	root.Handle("/v1/", guarded)

	if s.opts.Metrics != nil && s.opts.Config.Telemetry.Metrics.Enabled {
		root.Handle(s.opts.Config.Telemetry.Metrics.Path, s.opts.Metrics.Handler())
	}
	if s.opts.Health != nil {
		health.Mount(root, s.opts.Health, s.opts.Version, s.opts.Commit, s.opts.BuildTime)
	}

	var handler http.Handler = root
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	return handler
}
