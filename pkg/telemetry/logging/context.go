package logging

import (
	"context"
	"log/slog"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity"
	endpointKey  contextKey = "endpoint"
)

// WithRequestID returns a context carrying the given request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithIdentity returns a context carrying the resolved client identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// WithEndpoint returns a context carrying the endpoint name.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey, endpoint)
}

// RequestIDFromContext extracts the request id, if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok
}

// FieldsFromContext extracts request-scoped log fields from the
// context as alternating key/value pairs suitable for slog calls.
func FieldsFromContext(ctx context.Context) []any {
	var fields []any
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, "request_id", v)
	}
	if v, ok := ctx.Value(identityKey).(string); ok && v != "" {
		fields = append(fields, "identity", v)
	}
	if v, ok := ctx.Value(endpointKey).(string); ok && v != "" {
		fields = append(fields, "endpoint", v)
	}
	return fields
}

// FromContext returns the given logger enriched with any request-scoped
// fields carried by the context.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
