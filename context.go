package authbridge

import (
	"context"

	internalaudit "github.com/authbridge/authbridge/internal/audit"
)

// WithClientIP attaches the caller's IP address to ctx. It keys the login
// throttle and is recorded in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	r := internalaudit.RequestFrom(ctx)
	r.ClientIP = ip
	return internalaudit.WithRequest(ctx, r)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	r := internalaudit.RequestFrom(ctx)
	r.UserAgent = userAgent
	return internalaudit.WithRequest(ctx, r)
}

// WithRequestID attaches a request correlation id to ctx. It is logged with
// every failure and recorded in audit events.
func WithRequestID(ctx context.Context, id string) context.Context {
	r := internalaudit.RequestFrom(ctx)
	r.ID = id
	return internalaudit.WithRequest(ctx, r)
}

// RequestIDFromContext returns the id set by [WithRequestID].
func RequestIDFromContext(ctx context.Context) string {
	return internalaudit.RequestFrom(ctx).ID
}

func clientIPFromContext(ctx context.Context) string {
	return internalaudit.RequestFrom(ctx).ClientIP
}
