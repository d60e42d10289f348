package flows

import (
	"context"
	"errors"
	"time"

	"github.com/authbridge/authbridge/cache"
	"github.com/authbridge/authbridge/jwt"
)

// LogoutResult reports how many tombstones were written.
type LogoutResult struct {
	Failure    Failure
	Err        error
	UserID     string
	Tombstoned int
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	VerifyAccess  func(string) (*jwt.Claims, error)
	VerifyRefresh func(string) (*jwt.Claims, error)
	Cache         CacheStore
	Keys          cache.Keys
	Leeway        time.Duration
	Now           func() time.Time
}

// RunLogout tombstones the access and refresh tokens for the rest of their
// natural lifetime. A successor minted for the access token and still cached
// is tombstoned too, and the pointer to it is removed.
//
// Tokens that are malformed or already past expiry can never verify again and
// are skipped. Repeating a logout is not an error.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) LogoutResult {
	if refreshToken == "" {
		return LogoutResult{Failure: FailureMissingRefreshToken}
	}

	res := LogoutResult{}
	if claims, err := deps.VerifyRefresh(refreshToken); err == nil {
		res.UserID = claims.UID
		if err := tombstone(ctx, refreshToken, claims, deps, &res); err != nil {
			return LogoutResult{Failure: FailureCacheUnavailable, Err: err, UserID: res.UserID}
		}
	}

	if accessToken == "" {
		return res
	}

	claims, err := deps.VerifyAccess(accessToken)
	switch {
	case err == nil:
		if res.UserID == "" {
			res.UserID = claims.UID
		}
		if err := tombstone(ctx, accessToken, claims, deps, &res); err != nil {
			return LogoutResult{Failure: FailureCacheUnavailable, Err: err, UserID: res.UserID}
		}
	case errors.Is(err, jwt.ErrExpired):
	default:
		return res
	}

	if err := dropSuccessor(ctx, accessToken, deps, &res); err != nil {
		return LogoutResult{Failure: FailureCacheUnavailable, Err: err, UserID: res.UserID}
	}
	return res
}

func dropSuccessor(ctx context.Context, accessToken string, deps LogoutDeps, res *LogoutResult) error {
	pointer := deps.Keys.Cached(accessToken)
	successor, ok, err := deps.Cache.Get(ctx, pointer)
	if err != nil {
		return err
	}
	if !ok || successor == "" {
		return nil
	}
	if successor != accessToken {
		if claims, err := deps.VerifyAccess(successor); err == nil {
			if err := tombstone(ctx, successor, claims, deps, res); err != nil {
				return err
			}
		}
	}
	_, err = deps.Cache.Delete(ctx, pointer)
	return err
}

func tombstone(ctx context.Context, token string, claims *jwt.Claims, deps LogoutDeps, res *LogoutResult) error {
	ttl := claims.Remaining(deps.Now()) + deps.Leeway
	if ttl <= 0 {
		return nil
	}
	if err := deps.Cache.Set(ctx, deps.Keys.Invalidated(token), string(claims.Kind), ttl); err != nil {
		return err
	}
	res.Tombstoned++
	return nil
}
