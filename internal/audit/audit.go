package audit

import (
	"context"
	"time"
)

// Event records one gateway operation. Raw tokens never appear in an event;
// TokenID is the access token's jti. Timestamp and the request fields are
// filled in by the Dispatcher when left empty.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Request identifies the caller of a gateway operation. The HTTP layer
// attaches it to the request context; the gateway reads the client IP from it
// for login throttling.
type Request struct {
	ID        string
	ClientIP  string
	UserAgent string
}

type requestKey struct{}

// WithRequest returns a copy of ctx carrying r.
func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the Request attached to ctx, or the zero value.
func RequestFrom(ctx context.Context) Request {
	if ctx == nil {
		return Request{}
	}
	r, _ := ctx.Value(requestKey{}).(Request)
	return r
}

// attach copies the request fields of ctx into event where event has none.
func attach(ctx context.Context, event *Event) {
	r := RequestFrom(ctx)
	if event.RequestID == "" {
		event.RequestID = r.ID
	}
	if event.ClientIP == "" {
		event.ClientIP = r.ClientIP
	}
	if event.UserAgent == "" {
		event.UserAgent = r.UserAgent
	}
}
