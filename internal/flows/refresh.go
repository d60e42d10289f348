package flows

import (
	"context"
	"errors"
	"time"

	"github.com/authbridge/authbridge/cache"
	"github.com/authbridge/authbridge/identity"
	"github.com/authbridge/authbridge/jwt"
)

// RefreshResult carries either the newly minted access token or failure
// metadata. A refresh never issues a new refresh token.
type RefreshResult struct {
	Failure     Failure
	Err         error
	UserID      string
	Claims      *jwt.Claims
	AccessToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh func(string) (*jwt.Claims, error)
	IssueAccess   func(identity.Identity) (string, *jwt.Claims, error)
	Cache         CacheStore
	Keys          cache.Keys
	GraceTTL      time.Duration
	Leeway        time.Duration
	Now           func() time.Time
}

// RunRefresh mints a new access token from refreshToken and publishes it under
// its cached- key before returning. A logout that lands while the token is
// being published wins: the new token is tombstoned and never returned.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	res := mintFromRefresh(ctx, refreshToken, "", deps)
	if res.Failure != FailureNone {
		return res
	}
	pointer := deps.Keys.Cached(res.AccessToken)
	if err := deps.Cache.Set(ctx, pointer, res.AccessToken, deps.GraceTTL); err != nil {
		return RefreshResult{Failure: FailureCacheUnavailable, Err: err, UserID: res.UserID}
	}
	revoked, err := withdrawIfRevoked(ctx, refreshToken, res, deps, pointer)
	if err != nil {
		return RefreshResult{Failure: FailureCacheUnavailable, Err: err, UserID: res.UserID}
	}
	if revoked {
		return RefreshResult{Failure: FailureRevoked, UserID: res.UserID}
	}
	return res
}

// withdrawIfRevoked re-reads the refresh token's tombstone once a successor is
// published. Logout writes that tombstone before it looks up cached pointers,
// so either logout finds the pointer or this read finds the tombstone. When
// revoked, the successor is tombstoned and the given pointers are removed.
func withdrawIfRevoked(ctx context.Context, refreshToken string, minted RefreshResult, deps RefreshDeps, pointers ...string) (bool, error) {
	revoked, err := isInvalidated(ctx, deps.Cache, deps.Keys, refreshToken)
	if err != nil || !revoked {
		return false, err
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	if ttl := minted.Claims.Remaining(now()) + deps.Leeway; ttl > 0 {
		if err := deps.Cache.Set(ctx, deps.Keys.Invalidated(minted.AccessToken), string(minted.Claims.Kind), ttl); err != nil {
			return true, err
		}
	}
	for _, key := range pointers {
		if _, err := deps.Cache.Delete(ctx, key); err != nil {
			return true, err
		}
	}
	return true, nil
}

// mintFromRefresh validates refreshToken and signs a new access token from
// its claims. A non-empty expectUID must match the refresh token's subject.
// Nothing is written to the cache.
func mintFromRefresh(ctx context.Context, refreshToken, expectUID string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: FailureRefreshRequired}
	}

	rc, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: FailureRefreshInvalid, Err: err}
	}
	if expectUID != "" && rc.UID != expectUID {
		return RefreshResult{
			Failure: FailureRefreshInvalid,
			Err:     errors.New("refresh token subject does not match access token"),
			UserID:  rc.UID,
		}
	}

	revoked, err := isInvalidated(ctx, deps.Cache, deps.Keys, refreshToken)
	if err != nil {
		return RefreshResult{Failure: FailureCacheUnavailable, Err: err, UserID: rc.UID}
	}
	if revoked {
		return RefreshResult{Failure: FailureRevoked, UserID: rc.UID}
	}

	access, claims, err := deps.IssueAccess(rc.Identity())
	if err != nil {
		return RefreshResult{Failure: FailureIssue, Err: err, UserID: rc.UID}
	}

	return RefreshResult{
		UserID:      rc.UID,
		Claims:      claims,
		AccessToken: access,
	}
}

func isInvalidated(ctx context.Context, store CacheStore, keys cache.Keys, token string) (bool, error) {
	_, ok, err := store.Get(ctx, keys.Invalidated(token))
	if err != nil {
		return false, err
	}
	return ok, nil
}
