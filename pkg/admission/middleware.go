package admission

import (
	"net/http"
	"strconv"
	"time"
)

// EndpointNamer maps a request to its canonical endpoint identifier
// (route name, not raw path, so path parameters do not fragment
// counters). The host's router typically provides this.
type EndpointNamer func(*http.Request) string

// PathEndpointNamer names endpoints by URL path. Suitable only for
// routes without path parameters; prefer a router-backed namer.
func PathEndpointNamer(r *http.Request) string {
	return r.URL.Path
}

// Middleware wraps a handler with the admission check.
//
// On every request it resolves the client identity, calls Check, and
// sets the standard rate limit headers. Denied requests are answered
// with 429 Too Many Requests and a Retry-After header derived from the
// decision's reset time; the inner handler is never invoked.
//
// Example:
//
//	resolver, _ := admission.NewIdentityResolver(cfg.Identity)
//	handler := manager.Middleware(resolver, namer)(mux)
func (m *Manager) Middleware(resolver *IdentityResolver, namer EndpointNamer) func(http.Handler) http.Handler {
	if namer == nil {
		namer = PathEndpointNamer
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := resolver.FromRequest(r)
			endpoint := namer(r)

			decision := m.Check(identity, endpoint)
			setRateLimitHeaders(w, decision)

			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders exposes the decision on the response.
func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
