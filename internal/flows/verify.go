package flows

import (
	"context"
	"errors"

	"github.com/authbridge/authbridge/cache"
	"github.com/authbridge/authbridge/jwt"
)

// VerifySource records how a successful verification obtained its token.
type VerifySource int

const (
	// VerifySourceDirect means the presented token was valid.
	VerifySourceDirect VerifySource = iota
	// VerifySourceCached means a successor found under cached-<token> was used.
	VerifySourceCached
	// VerifySourceRefreshed means a new access token was minted.
	VerifySourceRefreshed
)

// VerifyResult returns either the authenticated claims or a classified failure.
//
// AccessToken is the token the caller should use from now on; it differs from
// the presented token when Source is not VerifySourceDirect.
type VerifyResult struct {
	Failure     Failure
	Err         error
	Claims      *jwt.Claims
	AccessToken string
	Source      VerifySource
}

// Rotated reports whether the caller must switch to a new access token.
func (r VerifyResult) Rotated() bool {
	return r.Failure == FailureNone && r.Source != VerifySourceDirect
}

// VerifyDeps captures verification dependencies. Refresh is used for the
// Refreshing state and shares the same cache.
type VerifyDeps struct {
	VerifyAccess func(string) (*jwt.Claims, error)
	Cache        CacheStore
	Keys         cache.Keys
	Refresh      RefreshDeps
}

// RunVerify executes the access-token verification state machine.
//
// A valid token is accepted unless tombstoned. An expired token is replaced by
// its cached successor at most once; without one, refreshToken is used to
// mint a successor which is cached under both the new and the presented token
// before returning. A cache failure while checking a tombstone rejects the
// request.
func RunVerify(ctx context.Context, accessToken, refreshToken string, deps VerifyDeps) VerifyResult {
	if accessToken == "" {
		return VerifyResult{Failure: FailureMissingToken}
	}

	token := accessToken
	source := VerifySourceDirect
	for {
		claims, err := deps.VerifyAccess(token)
		switch {
		case err == nil:
			revoked, err := isInvalidated(ctx, deps.Cache, deps.Keys, token)
			if err != nil {
				return VerifyResult{Failure: FailureCacheUnavailable, Err: err}
			}
			if revoked {
				return VerifyResult{Failure: FailureRevoked, Claims: claims}
			}
			return VerifyResult{Claims: claims, AccessToken: token, Source: source}

		case errors.Is(err, jwt.ErrExpired):
			if source == VerifySourceCached {
				return VerifyResult{Failure: FailureExpired, Err: err, Claims: claims}
			}
			successor, ok, err := deps.Cache.Get(ctx, deps.Keys.Cached(token))
			if err != nil {
				return VerifyResult{Failure: FailureCacheUnavailable, Err: err}
			}
			if ok && successor != "" {
				token = successor
				source = VerifySourceCached
				continue
			}
			return refreshExpired(ctx, accessToken, claims, refreshToken, deps)

		default:
			return VerifyResult{Failure: FailureMalformed, Err: err}
		}
	}
}

func refreshExpired(ctx context.Context, expired string, expiredClaims *jwt.Claims, refreshToken string, deps VerifyDeps) VerifyResult {
	res := mintFromRefresh(ctx, refreshToken, expiredClaims.UID, deps.Refresh)
	if res.Failure != FailureNone {
		return VerifyResult{Failure: res.Failure, Err: res.Err}
	}

	rd := deps.Refresh
	self, prev := rd.Keys.Cached(res.AccessToken), rd.Keys.Cached(expired)
	if err := rd.Cache.Set(ctx, self, res.AccessToken, rd.GraceTTL); err != nil {
		return VerifyResult{Failure: FailureCacheUnavailable, Err: err}
	}
	if err := rd.Cache.Set(ctx, prev, res.AccessToken, rd.GraceTTL); err != nil {
		return VerifyResult{Failure: FailureCacheUnavailable, Err: err}
	}
	revoked, err := withdrawIfRevoked(ctx, refreshToken, res, rd, self, prev)
	if err != nil {
		return VerifyResult{Failure: FailureCacheUnavailable, Err: err}
	}
	if revoked {
		return VerifyResult{Failure: FailureRevoked}
	}

	return VerifyResult{
		Claims:      res.Claims,
		AccessToken: res.AccessToken,
		Source:      VerifySourceRefreshed,
	}
}
