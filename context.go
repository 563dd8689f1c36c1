package portunus

import (
	"context"

	"github.com/portunus-id/portunus/internal/audit"
)

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for the per-IP login lockout and reset throttle, and in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return audit.WithClientIP(ctx, ip)
}

// WithRequestID attaches a request identifier that audit events carry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return audit.WithRequestID(ctx, id)
}

func clientIPFromContext(ctx context.Context) string {
	return audit.ClientIP(ctx)
}

// RequestIDFromContext returns the identifier set by [WithRequestID].
func RequestIDFromContext(ctx context.Context) string {
	return audit.RequestID(ctx)
}
