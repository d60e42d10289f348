package authbridge

import (
	"errors"
)

var (
	// ErrTokenInvalid is returned for a malformed access token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when an access token and its cached successor have both expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for a tombstoned token.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshRequired is returned when an expired access token arrives without a refresh token.
	ErrRefreshRequired = errors.New("refresh token required")
	// ErrRefreshInvalid is returned for a malformed, expired or foreign refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrIdentityProvider is returned when the identity provider rejects the credential or is unreachable.
	ErrIdentityProvider = errors.New("identity provider error")
	// ErrCacheUnavailable is returned when the cache store could not answer.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrBadRequest is returned when a required input is missing.
	ErrBadRequest = errors.New("bad request")
	// ErrTokenIssue is returned when a token could not be signed.
	ErrTokenIssue = errors.New("token issue failed")
	// ErrRateLimited is returned when a client has too many recent failed logins.
	ErrRateLimited = errors.New("too many failed attempts")
	// ErrEngineNotReady is returned by a Gateway that was not built with [Builder.Build].
	ErrEngineNotReady = errors.New("gateway not initialized")
)

// Outcome is the externally visible class of a failed operation.
type Outcome int

const (
	// OutcomeUnauthorized rejects the caller's credentials (HTTP 401).
	OutcomeUnauthorized Outcome = iota + 1
	// OutcomeBadRequest reports a missing input (HTTP 400).
	OutcomeBadRequest
	// OutcomeUnavailable reports a backend failure (HTTP 503). The request is
	// never authenticated.
	OutcomeUnavailable
	// OutcomeTooManyRequests reports a throttled login (HTTP 429).
	OutcomeTooManyRequests
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeTooManyRequests:
		return "too_many_requests"
	default:
		return "unknown"
	}
}

// Reason codes are stable and safe to show to clients.
const (
	ReasonInvalidToken        = "invalid_token"
	ReasonTokenExpired        = "token_expired"
	ReasonRevoked             = "revoked"
	ReasonRefreshRequired     = "refresh_required"
	ReasonInvalidRefreshToken = "invalid_refresh_token"
	ReasonIdentityProvider    = "identity_provider_error"
	ReasonMissingToken        = "missing_token"
	ReasonMissingRefreshToken = "missing_refresh_token"
	ReasonMissingCredential   = "missing_credential"
	ReasonTooManyAttempts     = "too_many_attempts"
	ReasonServiceUnavailable  = "service_unavailable"
	ReasonInternal            = "internal_error"
)

// Error is the only error type returned by Gateway operations.
//
// Error() yields the public sentinel text only. The backend cause, if any, is
// reachable through [Error.Cause] for logging and must not be shown to
// clients.
type Error struct {
	Outcome Outcome
	Reason  string

	sentinel error
	cause    error
}

func newError(outcome Outcome, reason string, sentinel, cause error) *Error {
	return &Error{Outcome: outcome, Reason: reason, sentinel: sentinel, cause: cause}
}

func (e *Error) Error() string {
	if e == nil || e.sentinel == nil {
		return ReasonInternal
	}
	return e.sentinel.Error()
}

// Unwrap returns the public sentinel, so errors.Is(err, ErrTokenRevoked) works.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.sentinel
}

// Cause returns the internal error behind e, or nil.
func (e *Error) Cause() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// ReasonOf returns the reason code carried by err, or ReasonInternal for any
// other non-nil error.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return ReasonInternal
}

// OutcomeOf returns the outcome carried by err. Unknown errors map to
// OutcomeUnavailable so that they are never mistaken for success.
func OutcomeOf(err error) Outcome {
	var e *Error
	if errors.As(err, &e) && e.Outcome != 0 {
		return e.Outcome
	}
	return OutcomeUnavailable
}
