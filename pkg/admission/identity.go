package admission

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// userIDKey stores the authenticated user id set by the host's auth
// layer.
const userIDKey contextKey = "admission_user_id"

// ContextWithUserID returns a context carrying the authenticated user
// id. The host's authentication middleware calls this before the
// admission middleware runs.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// IdentityConfig contains configuration for identity resolution.
type IdentityConfig struct {
	// TrustProxyHeaders enables reading X-Forwarded-For. Only enable
	// when the service sits behind proxies you control; the header is
	// client-forgeable otherwise.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	// TrustedProxies lists CIDR blocks of proxies whose forwarded-for
	// entries are trusted. Empty with TrustProxyHeaders set trusts the
	// immediate peer only.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// IdentityResolver derives the client identity used to key rate limit
// counters.
//
// Precedence is deterministic and documented: an authenticated user id
// always wins, even when the request also carries forwarded-for
// headers. Otherwise the client IP is used, unwound through the
// trusted proxy chain when configured.
type IdentityResolver struct {
	trustHeaders bool
	trusted      []*net.IPNet
}

// NewIdentityResolver builds a resolver from configuration.
// Invalid CIDR entries are rejected.
func NewIdentityResolver(config IdentityConfig) (*IdentityResolver, error) {
	r := &IdentityResolver{trustHeaders: config.TrustProxyHeaders}
	for _, cidr := range config.TrustedProxies {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, err
		}
		r.trusted = append(r.trusted, block)
	}
	return r, nil
}

// FromRequest resolves the identity for one request.
//
//  1. Authenticated user id from the request context, when present.
//  2. With proxy trust enabled: the rightmost X-Forwarded-For entry
//     that is not a trusted proxy, walking right to left. Entries to
//     the left are client-supplied and never trusted.
//  3. The connection's remote address.
func (r *IdentityResolver) FromRequest(req *http.Request) string {
	if userID := UserIDFromContext(req.Context()); userID != "" {
		return userID
	}

	remoteIP := remoteHost(req.RemoteAddr)

	if r.trustHeaders && r.peerTrusted(remoteIP) {
		if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
			hops := strings.Split(fwd, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop == "" {
					continue
				}
				if !r.isTrustedProxy(hop) {
					return hop
				}
			}
		}
	}

	return remoteIP
}

// peerTrusted reports whether the direct peer may speak for clients
// behind it. With no trusted CIDR list configured, any peer is
// accepted (the operator asked for header trust without narrowing).
func (r *IdentityResolver) peerTrusted(ip string) bool {
	if len(r.trusted) == 0 {
		return true
	}
	return r.isTrustedProxy(ip)
}

// isTrustedProxy reports whether ip falls inside a trusted CIDR.
func (r *IdentityResolver) isTrustedProxy(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, block := range r.trusted {
		if block.Contains(parsed) {
			return true
		}
	}
	return false
}

// remoteHost strips the port from an address like "10.0.0.1:52114".
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
