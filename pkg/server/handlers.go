package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/ganymede/pkg/analytics"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleViolations serves GET /v1/violations: violation records
// filtered by time range, endpoint, identity, and tier, newest first.
//
// Query parameters: start, end (RFC 3339), endpoint, identity, tier,
// limit, offset.
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Storage == nil {
		writeError(w, http.StatusNotFound, "analytics storage is not enabled")
		return
	}

	q := &analytics.ViolationQuery{
		Endpoint: r.URL.Query().Get("endpoint"),
		Identity: r.URL.Query().Get("identity"),
		Tier:     r.URL.Query().Get("tier"),
	}

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start time, expected RFC 3339")
			return
		}
		q.StartTime = &t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end time, expected RFC 3339")
			return
		}
		q.EndTime = &t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		q.Offset = n
	}

	records, err := s.opts.Storage.QueryViolations(r.Context(), q)
	if err != nil {
		s.logger.Error("violation query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"violations": records,
		"count":      len(records),
	})
}

// handleLatestReport serves GET /v1/reports/cache/latest: the most
// recently generated cache analysis report.
func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Storage == nil {
		writeError(w, http.StatusNotFound, "analytics storage is not enabled")
		return
	}

	rep, err := s.opts.Storage.LatestReport(r.Context())
	if err != nil {
		if errors.Is(err, analytics.ErrNoReport) {
			writeError(w, http.StatusNotFound, "no report has been generated yet")
			return
		}
		s.logger.Error("report lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "report lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// handleMonitorStatus serves GET /v1/monitor/status: the resource
// monitor's current view of the counter store.
func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Monitor == nil {
		writeError(w, http.StatusNotFound, "resource monitor is not enabled")
		return
	}

	writeJSON(w, http.StatusOK, s.opts.Monitor.Status())
}

// handleRules serves GET /v1/rules: the active rule table.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Manager == nil {
		writeError(w, http.StatusNotFound, "admission manager is not enabled")
		return
	}

	rs := s.opts.Manager.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"default_tier": rs.DefaultTier(),
		"rules":        rs.Rules(),
	})
}
