package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/authbridge/authbridge/identity"
	"github.com/authbridge/authbridge/internal/rate"
	"github.com/authbridge/authbridge/jwt"
)

// ErrEmailNotVerified is returned when verified email is required and the
// provider reports it unverified.
var ErrEmailNotVerified = errors.New("email not verified")

// AuthenticateResult carries the verified identity or failure metadata.
type AuthenticateResult struct {
	Failure  Failure
	Err      error
	Identity identity.Identity
	// ThrottleErr is set when the failure counter could not be updated.
	ThrottleErr error
}

// Throttle limits repeated failed logins per client. It is optional.
type Throttle interface {
	Check(ctx context.Context, client string) error
	RecordFailure(ctx context.Context, client string) error
	Reset(ctx context.Context, client string) error
}

// AuthenticateDeps captures federated credential verification dependencies.
type AuthenticateDeps struct {
	Verifier             identity.Verifier
	Timeout              time.Duration
	RequireVerifiedEmail bool
	Throttle             Throttle
	// ThrottleTimeout bounds each counter call. Zero means no bound.
	ThrottleTimeout time.Duration
}

// RunAuthenticate verifies a federated credential with the identity provider,
// bounded by deps.Timeout. client identifies the caller for throttling and
// may be empty.
func RunAuthenticate(ctx context.Context, credential, client string, deps AuthenticateDeps) AuthenticateResult {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return AuthenticateResult{Failure: FailureMissingCredential}
	}
	if deps.Verifier == nil {
		return AuthenticateResult{Failure: FailureIdentity, Err: identity.ErrProviderUnavailable}
	}

	if deps.Throttle != nil {
		if err := throttleCall(ctx, deps, client, deps.Throttle.Check); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return AuthenticateResult{Failure: FailureRateLimited, Err: err}
			}
			return AuthenticateResult{Failure: FailureCacheUnavailable, Err: err}
		}
	}

	res := authenticate(ctx, credential, deps)
	if deps.Throttle == nil {
		return res
	}

	// Counter writes are best effort; the login outcome stands.
	if res.Failure == FailureNone {
		res.ThrottleErr = throttleCall(ctx, deps, client, deps.Throttle.Reset)
	} else {
		res.ThrottleErr = throttleCall(ctx, deps, client, deps.Throttle.RecordFailure)
	}
	return res
}

func throttleCall(ctx context.Context, deps AuthenticateDeps, client string, call func(context.Context, string) error) error {
	if deps.ThrottleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.ThrottleTimeout)
		defer cancel()
	}
	return call(ctx, client)
}

func authenticate(ctx context.Context, credential string, deps AuthenticateDeps) AuthenticateResult {
	if deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.Timeout)
		defer cancel()
	}

	id, err := deps.Verifier.VerifyCredential(ctx, credential)
	if err != nil {
		return AuthenticateResult{Failure: FailureIdentity, Err: identity.Classify(ctx, err)}
	}
	if id.UID == "" {
		return AuthenticateResult{
			Failure: FailureIdentity,
			Err:     errors.Join(identity.ErrInvalidCredential, errors.New("identity without uid")),
		}
	}
	if deps.RequireVerifiedEmail && !id.EmailVerified {
		return AuthenticateResult{Failure: FailureUnverifiedEmail, Err: ErrEmailNotVerified, Identity: id}
	}
	return AuthenticateResult{Identity: id}
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Failure       Failure
	Err           error
	Identity      identity.Identity
	AccessToken   string
	RefreshToken  string
	AccessClaims  *jwt.Claims
	RefreshClaims *jwt.Claims
}

// LoginDeps captures session issuance dependencies.
type LoginDeps struct {
	IssueAccess  func(identity.Identity) (string, *jwt.Claims, error)
	IssueRefresh func(identity.Identity) (string, *jwt.Claims, error)
	DefaultRole  string
}

// RunLogin mints a fresh access and refresh token pair for a verified
// identity. No prior session state is consulted.
//
// The role is taken from role when non-empty, else from the identity, else
// from deps.DefaultRole.
func RunLogin(ctx context.Context, id identity.Identity, role string, deps LoginDeps) LoginResult {
	id.Role = ResolveRole(role, id.Role, deps.DefaultRole)

	access, accessClaims, err := deps.IssueAccess(id)
	if err != nil {
		return LoginResult{Failure: FailureIssue, Err: err, Identity: id}
	}
	refresh, refreshClaims, err := deps.IssueRefresh(id)
	if err != nil {
		return LoginResult{Failure: FailureIssue, Err: err, Identity: id}
	}

	return LoginResult{
		Identity:      id,
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
	}
}

// ResolveRole returns the first non-blank role.
func ResolveRole(candidates ...string) string {
	for _, r := range candidates {
		if r = strings.TrimSpace(r); r != "" {
			return r
		}
	}
	return ""
}
