package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/admission"
	"mercator-hq/ganymede/pkg/admission/counter"
	"mercator-hq/ganymede/pkg/analytics"
	"mercator-hq/ganymede/pkg/analytics/storage"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/monitor"
	"mercator-hq/ganymede/pkg/telemetry/health"
)

// ============================================================================
// Helpers
// ============================================================================

func testRules() []admission.Rule {
	return []admission.Rule{
		{
			Tier:     "expensive",
			Windows:  []admission.Window{{Max: 2, Duration: time.Minute}},
			Patterns: []string{"/v1/reports/*"},
		},
		{
			Tier:     "cheap",
			Windows:  []admission.Window{{Max: 1000, Duration: time.Minute}},
			Patterns: []string{"*"},
		},
	}
}

func newTestServer(t *testing.T, store analytics.Storage) *Server {
	t.Helper()

	manager, err := admission.NewManager(admission.Config{
		Rules:       testRules(),
		DefaultTier: "cheap",
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	resolver, err := admission.NewIdentityResolver(admission.IdentityConfig{})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Analytics.Backend = "memory"

	mon := monitor.New(counter.NewSharded(4), nil)

	return NewServer(Options{
		Config:   cfg,
		Manager:  manager,
		Resolver: resolver,
		Monitor:  mon,
		Storage:  store,
		Health:   health.New(time.Second),
		Version:  "test",
	})
}

func doRequest(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "198.51.100.10:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// Read API
// ============================================================================

func TestHandleViolations(t *testing.T) {
	store := storage.NewMemoryStorage()
	now := time.Now().UTC()
	records := []*analytics.ViolationRecord{
		{ID: "a", Timestamp: now.Add(-time.Minute), Endpoint: "ai.analyze", Identity: "user:alice", Tier: "expensive"},
		{ID: "b", Timestamp: now, Endpoint: "reports.daily", Identity: "ip:10.0.0.1", Tier: "cheap"},
	}
	if err := store.StoreViolations(context.Background(), records); err != nil {
		t.Fatalf("Failed to seed storage: %v", err)
	}

	srv := newTestServer(t, store)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/violations")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Violations []analytics.ViolationRecord `json:"violations"`
		Count      int                         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Expected 2 violations, got %d", resp.Count)
	}
	// Newest first.
	if resp.Violations[0].ID != "b" {
		t.Errorf("Expected newest violation first, got %q", resp.Violations[0].ID)
	}
}

func TestHandleViolations_TierFilter(t *testing.T) {
	store := storage.NewMemoryStorage()
	now := time.Now().UTC()
	records := []*analytics.ViolationRecord{
		{ID: "a", Timestamp: now, Endpoint: "ai.analyze", Identity: "u1", Tier: "expensive"},
		{ID: "b", Timestamp: now, Endpoint: "search.basic", Identity: "u2", Tier: "cheap"},
	}
	if err := store.StoreViolations(context.Background(), records); err != nil {
		t.Fatalf("Failed to seed storage: %v", err)
	}

	srv := newTestServer(t, store)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/violations?tier=expensive")

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("Expected 1 expensive violation, got %d", resp.Count)
	}
}

func TestHandleViolations_BadTimeParam(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/violations?start=yesterday")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad start param, got %d", rec.Code)
	}
}

func TestHandleLatestReport_NoReport(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/reports/cache/latest")

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 with no report, got %d", rec.Code)
	}
}

func TestHandleLatestReport(t *testing.T) {
	store := storage.NewMemoryStorage()
	rep := &analytics.CacheAnalysisReport{
		GeneratedAt:  time.Now().UTC(),
		TotalQueries: 10,
	}
	if err := store.StoreReport(context.Background(), rep); err != nil {
		t.Fatalf("Failed to seed report: %v", err)
	}

	srv := newTestServer(t, store)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/reports/cache/latest")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleMonitorStatus(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/monitor/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status monitor.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func TestHandleRules(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/rules")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		DefaultTier string           `json:"default_tier"`
		Rules       []admission.Rule `json:"rules"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.DefaultTier != "cheap" {
		t.Errorf("Expected default tier cheap, got %q", resp.DefaultTier)
	}
	if len(resp.Rules) != 2 {
		t.Errorf("Expected 2 rules, got %d", len(resp.Rules))
	}
}

// ============================================================================
// Admission guard
// ============================================================================

func TestAPIRoutesAreGuarded(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	handler := srv.Handler()

	// The expensive tier allows 2 requests per minute on v1.reports.*.
	for i := 0; i < 2; i++ {
		rec := doRequest(t, handler, http.MethodGet, "/v1/reports/cache/latest")
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("Request %d unexpectedly rate limited", i+1)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("Expected X-RateLimit-Limit 2, got %q", rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := doRequest(t, handler, http.MethodGet, "/v1/reports/cache/latest")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 on third request, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on 429")
	}
}

func TestOperationalRoutesAreNotGuarded(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	handler := srv.Handler()

	// Exhaust every tier budget the test rules allow for this client.
	for i := 0; i < 1100; i++ {
		doRequest(t, handler, http.MethodGet, "/v1/monitor/status")
	}

	rec := doRequest(t, handler, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected health probe exempt from rate limiting, got %d", rec.Code)
	}
}

// ============================================================================
// Middleware
// ============================================================================

func TestRequestIDMiddleware_GeneratesAndEchoes(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/healthz")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected generated request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "client-supplied-id")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if got := rec2.Header().Get(RequestIDHeader); got != "client-supplied-id" {
		t.Errorf("Expected client request id echoed, got %q", got)
	}
}

func TestRecoveryMiddleware_Returns500(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})
	handler := RecoveryMiddleware(panicky)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", rec.Code)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServerStartAndShutdown(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage())
	srv.opts.Config.Server.ListenAddress = "127.0.0.1:0"
	srv.opts.Config.Server.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("Server never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Server did not shut down")
	}
}
