package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// ============================================================================
// Checker
// ============================================================================

func TestCheckLiveness(t *testing.T) {
	c := New(time.Second)

	status := c.CheckLiveness(context.Background())
	if status.Status != "ok" {
		t.Errorf("Expected status ok, got %q", status.Status)
	}
	if status.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestCheckReadiness_NoChecks(t *testing.T) {
	c := New(time.Second)

	status := c.CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("Expected ready with no checks, got %q", status.Status)
	}
}

func TestCheckReadiness_AllHealthy(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("rules", func(ctx context.Context) error { return nil })
	c.RegisterCheck("storage", func(ctx context.Context) error { return nil })

	status := c.CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("Expected ready, got %q", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Fatalf("Expected 2 check results, got %d", len(status.Checks))
	}
	if status.Checks["storage"].Status != "ok" {
		t.Errorf("Expected storage ok, got %q", status.Checks["storage"].Status)
	}
}

func TestCheckReadiness_Degraded(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("rules", func(ctx context.Context) error { return nil })
	c.RegisterCheck("storage", func(ctx context.Context) error {
		return errors.New("database is closed")
	})

	status := c.CheckReadiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("Expected degraded, got %q", status.Status)
	}
	result := status.Checks["storage"]
	if result.Status != "unhealthy" {
		t.Errorf("Expected storage unhealthy, got %q", result.Status)
	}
	if result.Message != "database is closed" {
		t.Errorf("Expected error message, got %q", result.Message)
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	status := c.CheckReadiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("Expected degraded on timeout, got %q", status.Status)
	}
}

func TestUnregisterCheck(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("storage", func(ctx context.Context) error { return errors.New("down") })
	c.UnregisterCheck("storage")

	if status := c.CheckReadiness(context.Background()); status.Status != "ready" {
		t.Errorf("Expected ready after unregister, got %q", status.Status)
	}
	if names := c.ListChecks(); len(names) != 0 {
		t.Errorf("Expected no registered checks, got %v", names)
	}
}

// ============================================================================
// Endpoints
// ============================================================================

func TestLivenessHandler(t *testing.T) {
	c := New(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("Expected ok, got %q", status.Status)
	}
}

func TestLivenessHandler_RejectsPost(t *testing.T) {
	c := New(time.Second)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestReadinessHandler_DegradedReturns503(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("storage", func(ctx context.Context) error { return errors.New("down") })

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestVersionHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-08-01")(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" {
		t.Errorf("Unexpected version info: %+v", info)
	}
	if info.GoVersion == "" {
		t.Error("Expected go version to be populated")
	}
}

func TestMount(t *testing.T) {
	mux := http.NewServeMux()
	Mount(mux, New(time.Second), "1.0.0", "deadbeef", "2026-08-01")

	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
