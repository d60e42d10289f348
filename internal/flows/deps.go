package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. The root gateway builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Verify       VerifyDeps
	Refresh      RefreshDeps
	Authenticate AuthenticateDeps
	Login        LoginDeps
	Logout       LogoutDeps
	Health       HealthDeps
}

// CacheStore is the subset of cache.Store the flows rely on. Backend failures
// must be returned as errors, never as an absent key.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) bool
}

// Failure classifies flow failures for root-level mapping.
type Failure int

const (
	FailureNone Failure = iota
	FailureMissingToken
	FailureMalformed
	FailureExpired
	FailureRevoked
	FailureRefreshRequired
	FailureRefreshInvalid
	FailureMissingRefreshToken
	FailureMissingCredential
	FailureIdentity
	FailureUnverifiedEmail
	FailureCacheUnavailable
	FailureIssue
	FailureRateLimited
)

var failureNames = [...]string{
	FailureNone:                "none",
	FailureMissingToken:        "missing_token",
	FailureMalformed:           "malformed",
	FailureExpired:             "expired",
	FailureRevoked:             "revoked",
	FailureRefreshRequired:     "refresh_required",
	FailureRefreshInvalid:      "refresh_invalid",
	FailureMissingRefreshToken: "missing_refresh_token",
	FailureMissingCredential:   "missing_credential",
	FailureIdentity:            "identity",
	FailureUnverifiedEmail:     "unverified_email",
	FailureCacheUnavailable:    "cache_unavailable",
	FailureIssue:               "issue",
	FailureRateLimited:         "rate_limited",
}

// String returns the stable name of f.
func (f Failure) String() string {
	if f < 0 || int(f) >= len(failureNames) {
		return "unknown"
	}
	return failureNames[f]
}
