package authbridge

import (
	"io"
	"time"

	"github.com/authbridge/authbridge/identity"
	internalaudit "github.com/authbridge/authbridge/internal/audit"
	"github.com/authbridge/authbridge/jwt"
)

// Identity is the verified subject returned by an identity provider.
type Identity = identity.Identity

// Claims is the typed payload of a session token.
type Claims = jwt.Claims

// LoginResult is returned by [Gateway.Login].
type LoginResult struct {
	Identity         Identity
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// VerifyResult is returned by [Gateway.Verify].
//
// AccessToken is the token the client should present from now on. When
// Rotated is true it differs from the one that was verified.
type VerifyResult struct {
	Claims      *Claims
	AccessToken string
	Rotated     bool
}

// RefreshResult is returned by [Gateway.Refresh].
type RefreshResult struct {
	UserID          string
	AccessToken     string
	AccessExpiresAt time.Time
}

// HealthReport is returned by [Gateway.Health].
type HealthReport struct {
	CacheAlive bool          `json:"cacheAlive"`
	Latency    time.Duration `json:"-"`
}

// AuditEvent is one structured record of a gateway operation.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel for the caller to drain.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
