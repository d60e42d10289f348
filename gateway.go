package authbridge

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/authbridge/authbridge/cache"
	"github.com/authbridge/authbridge/identity"
	internalaudit "github.com/authbridge/authbridge/internal/audit"
	"github.com/authbridge/authbridge/internal/flows"
	"github.com/authbridge/authbridge/jwt"
	"github.com/go-logr/logr"
)

// StatusOK is the constant liveness answer of [Gateway.Status].
const StatusOK = "Ok"

// Gateway is the request-facing surface: login, verify, refresh, logout and
// health. It is safe for concurrent use.
type Gateway struct {
	config     Config
	flows      flows.Service
	jwtManager *jwt.Manager
	store      cache.Store
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     logr.Logger
	now        func() time.Time
}

// Close flushes pending audit events. The cache store is left open; its
// owner closes it.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	if g.audit != nil {
		g.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (g *Gateway) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

// MetricsSnapshot returns the current counters.
func (g *Gateway) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Rejections: map[Rejection]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

// Config returns a copy of the configuration the Gateway was built with.
func (g *Gateway) Config() Config {
	if g == nil {
		return Config{}
	}
	return cloneConfig(g.config)
}

func (g *Gateway) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

func (g *Gateway) ready() bool {
	return g != nil && g.flows.Initialized()
}

var errNotReady = newError(OutcomeUnavailable, ReasonInternal, ErrEngineNotReady, nil)

// Login verifies a federated credential and issues a fresh access and
// refresh token pair. role overrides the provider's role claim when non-empty.
//
// Every provider failure, including an unreachable provider, is reported as
// OutcomeUnauthorized with ReasonIdentityProvider.
func (g *Gateway) Login(ctx context.Context, credential, role string) (*LoginResult, error) {
	if !g.ready() {
		return nil, errNotReady
	}

	auth := g.flows.Authenticate(ctx, credential, clientIPFromContext(ctx))
	if auth.ThrottleErr != nil {
		g.logger.Error(auth.ThrottleErr, "login throttle update failed")
	}
	if auth.Failure != flows.FailureNone {
		err := g.fail(ctx, "login", auth.Failure, auth.Err)
		g.metricInc(MetricLoginFailure)
		if auth.Failure == flows.FailureIdentity || auth.Failure == flows.FailureUnverifiedEmail {
			g.metricInc(MetricIdentityProviderError)
		}
		g.emitAudit(ctx, auditEventLoginFailure, false, auth.Identity.UID, "", err, nil)
		return nil, err
	}

	res := g.flows.Login(ctx, auth.Identity, role)
	if res.Failure != flows.FailureNone {
		err := g.fail(ctx, "login", res.Failure, res.Err)
		g.metricInc(MetricLoginFailure)
		g.emitAudit(ctx, auditEventLoginFailure, false, res.Identity.UID, "", err, nil)
		return nil, err
	}

	g.metricInc(MetricLoginSuccess)
	g.emitAudit(ctx, auditEventLoginSuccess, true, res.Identity.UID, res.AccessClaims.ID, nil, func() map[string]string {
		return map[string]string{
			"role":        res.Identity.Role,
			"refresh_jti": res.RefreshClaims.ID,
		}
	})

	return &LoginResult{
		Identity:         res.Identity,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  res.AccessClaims.ExpiresAt.Time,
		RefreshExpiresAt: res.RefreshClaims.ExpiresAt.Time,
	}, nil
}

// Verify authenticates accessToken. An expired token is renewed through its
// cached successor, or else with refreshToken, in which case the result is
// Rotated and carries the new access token.
//
// A cache failure rejects the request with OutcomeUnavailable; a token is
// never accepted without a completed revocation check.
func (g *Gateway) Verify(ctx context.Context, accessToken, refreshToken string) (*VerifyResult, error) {
	if !g.ready() {
		return nil, errNotReady
	}
	if g.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { g.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	res := g.flows.Verify(ctx, accessToken, refreshToken)
	if res.Failure != flows.FailureNone {
		err := g.fail(ctx, "verify", res.Failure, res.Err)
		g.metricInc(MetricVerifyRejected)
		if res.Failure == flows.FailureRevoked {
			g.metricInc(MetricRevokedRejected)
		}
		var uid, jti string
		if res.Claims != nil {
			uid, jti = res.Claims.UID, res.Claims.ID
		}
		g.emitAudit(ctx, auditEventVerifyRejected, false, uid, jti, err, nil)
		return nil, err
	}

	g.metricInc(MetricVerifySuccess)
	switch res.Source {
	case flows.VerifySourceCached:
		g.metricInc(MetricVerifyCachedSuccessor)
	case flows.VerifySourceRefreshed:
		g.metricInc(MetricTokenRotated)
		g.emitAudit(ctx, auditEventTokenRotated, true, res.Claims.UID, res.Claims.ID, nil, nil)
	}

	return &VerifyResult{
		Claims:      res.Claims,
		AccessToken: res.AccessToken,
		Rotated:     res.Rotated(),
	}, nil
}

// Refresh mints a new access token from refreshToken. The refresh token is
// not rotated.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !g.ready() {
		return nil, errNotReady
	}

	res := g.flows.Refresh(ctx, refreshToken)
	if res.Failure != flows.FailureNone {
		err := g.fail(ctx, "refresh", res.Failure, res.Err)
		g.metricInc(MetricRefreshFailure)
		g.emitAudit(ctx, auditEventRefreshFailure, false, res.UserID, "", err, nil)
		return nil, err
	}

	g.metricInc(MetricRefreshSuccess)
	g.metricInc(MetricTokenRotated)
	g.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.Claims.ID, nil, nil)

	return &RefreshResult{
		UserID:          res.UserID,
		AccessToken:     res.AccessToken,
		AccessExpiresAt: res.Claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes accessToken and refreshToken until their natural expiry.
// A missing refresh token is OutcomeBadRequest; repeating a logout, or
// presenting tokens that are already expired or revoked, succeeds.
func (g *Gateway) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if !g.ready() {
		return errNotReady
	}

	res := g.flows.Logout(ctx, accessToken, refreshToken)
	if res.Failure != flows.FailureNone {
		err := g.fail(ctx, "logout", res.Failure, res.Err)
		g.emitAudit(ctx, auditEventLogoutFailure, false, res.UserID, "", err, nil)
		return err
	}

	g.metricInc(MetricLogout)
	for i := 0; i < res.Tombstoned; i++ {
		g.metricInc(MetricTombstoneWritten)
	}
	g.emitAudit(ctx, auditEventLogout, true, res.UserID, "", nil, func() map[string]string {
		return map[string]string{"tombstones": strconv.Itoa(res.Tombstoned)}
	})
	return nil
}

// Health probes the cache store.
func (g *Gateway) Health(ctx context.Context) HealthReport {
	if !g.ready() {
		return HealthReport{}
	}
	alive, latency := g.flows.Health(ctx)
	if !alive {
		g.logger.Info("cache health probe failed", "latency", latency)
	}
	return HealthReport{CacheAlive: alive, Latency: latency}
}

// Status is a dependency-free liveness probe.
func (g *Gateway) Status() string {
	return StatusOK
}

// fail converts a flow failure into an *Error and logs it. Backend failures
// are logged at error level with their cause; rejections at V(1).
func (g *Gateway) fail(ctx context.Context, op string, f flows.Failure, cause error) *Error {
	err := mapFailure(f, cause)
	g.metrics.Reject(op, err.Reason)
	kv := []any{"op", op, "reason", err.Reason}
	if id := RequestIDFromContext(ctx); id != "" {
		kv = append(kv, "request_id", id)
	}

	switch {
	case err.Outcome == OutcomeUnavailable:
		if f == flows.FailureCacheUnavailable {
			g.metricInc(MetricCacheUnavailable)
		}
		g.logger.Error(cause, "request failed closed", kv...)
	case errors.Is(cause, identity.ErrProviderUnavailable):
		g.logger.Error(cause, "identity provider unavailable", kv...)
	default:
		if cause != nil {
			kv = append(kv, "cause", cause.Error())
		}
		g.logger.V(1).Info("request rejected", kv...)
	}
	return err
}

func mapFailure(f flows.Failure, cause error) *Error {
	switch f {
	case flows.FailureMissingToken:
		return newError(OutcomeUnauthorized, ReasonMissingToken, ErrTokenInvalid, cause)
	case flows.FailureMalformed:
		return newError(OutcomeUnauthorized, ReasonInvalidToken, ErrTokenInvalid, cause)
	case flows.FailureExpired:
		return newError(OutcomeUnauthorized, ReasonTokenExpired, ErrTokenExpired, cause)
	case flows.FailureRevoked:
		return newError(OutcomeUnauthorized, ReasonRevoked, ErrTokenRevoked, cause)
	case flows.FailureRefreshRequired:
		return newError(OutcomeUnauthorized, ReasonRefreshRequired, ErrRefreshRequired, cause)
	case flows.FailureRefreshInvalid:
		return newError(OutcomeUnauthorized, ReasonInvalidRefreshToken, ErrRefreshInvalid, cause)
	case flows.FailureMissingRefreshToken:
		return newError(OutcomeBadRequest, ReasonMissingRefreshToken, ErrBadRequest, cause)
	case flows.FailureMissingCredential:
		return newError(OutcomeUnauthorized, ReasonMissingCredential, ErrIdentityProvider, cause)
	case flows.FailureIdentity, flows.FailureUnverifiedEmail:
		return newError(OutcomeUnauthorized, ReasonIdentityProvider, ErrIdentityProvider, cause)
	case flows.FailureRateLimited:
		return newError(OutcomeTooManyRequests, ReasonTooManyAttempts, ErrRateLimited, cause)
	case flows.FailureCacheUnavailable:
		return newError(OutcomeUnavailable, ReasonServiceUnavailable, ErrCacheUnavailable, cause)
	case flows.FailureIssue:
		return newError(OutcomeUnavailable, ReasonInternal, ErrTokenIssue, cause)
	default:
		return newError(OutcomeUnavailable, ReasonInternal, ErrEngineNotReady, cause)
	}
}
