package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/authbridge/authbridge/identity"
	"github.com/authbridge/authbridge/internal/rate"
	"github.com/authbridge/authbridge/jwt"
	"github.com/redis/go-redis/v9"
)

func TestLoginIssuesDecodablePair(t *testing.T) {
	h := newHarness(t)
	res := RunLogin(context.Background(), identity.Identity{UID: "u1", Email: "a@b.com", EmailVerified: true}, "", h.deps.Login)
	if res.Failure != FailureNone {
		t.Fatalf("login: %v %v", res.Failure, res.Err)
	}

	access, err := h.codec.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	refresh, err := h.codec.VerifyRefresh(res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access.UID != "u1" || refresh.UID != "u1" {
		t.Fatalf("unexpected subjects %q %q", access.UID, refresh.UID)
	}
	if access.Kind != jwt.KindAccess || refresh.Kind != jwt.KindRefresh {
		t.Fatal("unexpected token kinds")
	}
	if access.Role != "user" {
		t.Fatalf("expected default role, got %q", access.Role)
	}
	if h.store.Len() != 0 {
		t.Fatal("login must not touch the cache")
	}
}

func TestResolveRolePrecedence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	withRole := identity.Identity{UID: "u1", Role: "editor"}
	if res := RunLogin(ctx, withRole, "admin", h.deps.Login); res.AccessClaims.Role != "admin" {
		t.Fatalf("explicit role must win, got %q", res.AccessClaims.Role)
	}
	if res := RunLogin(ctx, withRole, " ", h.deps.Login); res.AccessClaims.Role != "editor" {
		t.Fatalf("provider role must win over default, got %q", res.AccessClaims.Role)
	}
	if got := ResolveRole("", "", ""); got != "" {
		t.Fatalf("expected empty role, got %q", got)
	}
}

func TestLoginIssueFailure(t *testing.T) {
	deps := LoginDeps{
		IssueAccess: func(identity.Identity) (string, *jwt.Claims, error) {
			return "", nil, errors.New("signing key unavailable")
		},
	}
	if res := RunLogin(context.Background(), alice, "", deps); res.Failure != FailureIssue {
		t.Fatalf("expected issue failure, got %v", res.Failure)
	}
}

func TestAuthenticate(t *testing.T) {
	static := identity.NewStaticVerifier()
	static.Put("good", alice)
	static.Put("unverified", identity.Identity{UID: "u3", Email: "c@b.com"})
	static.Put("nouid", identity.Identity{Email: "d@b.com"})
	deps := AuthenticateDeps{Verifier: static, Timeout: time.Second, RequireVerifiedEmail: true}
	ctx := context.Background()

	res := RunAuthenticate(ctx, "good", "", deps)
	if res.Failure != FailureNone || res.Identity != alice {
		t.Fatalf("expected alice, got %+v %v %v", res.Identity, res.Failure, res.Err)
	}
	if res := RunAuthenticate(ctx, "  ", "", deps); res.Failure != FailureMissingCredential {
		t.Fatalf("expected missing credential, got %v", res.Failure)
	}
	res = RunAuthenticate(ctx, "bad", "", deps)
	if res.Failure != FailureIdentity || !errors.Is(res.Err, identity.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v %v", res.Failure, res.Err)
	}
	if res := RunAuthenticate(ctx, "unverified", "", deps); res.Failure != FailureUnverifiedEmail {
		t.Fatalf("expected unverified email failure, got %v", res.Failure)
	}
	if res := RunAuthenticate(ctx, "nouid", "", deps); res.Failure != FailureIdentity {
		t.Fatalf("expected identity failure for missing uid, got %v", res.Failure)
	}

	deps.RequireVerifiedEmail = false
	if res := RunAuthenticate(ctx, "unverified", "", deps); res.Failure != FailureNone {
		t.Fatalf("expected unverified email to pass when not required, got %v", res.Failure)
	}
}

func TestAuthenticateTimeout(t *testing.T) {
	slow := identity.VerifierFunc(func(ctx context.Context, raw string) (identity.Identity, error) {
		<-ctx.Done()
		return identity.Identity{}, ctx.Err()
	})
	deps := AuthenticateDeps{Verifier: slow, Timeout: 20 * time.Millisecond}

	start := time.Now()
	res := RunAuthenticate(context.Background(), "cred", "", deps)
	if res.Failure != FailureIdentity || !errors.Is(res.Err, identity.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v %v", res.Failure, res.Err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("identity call was not bounded by the timeout")
	}
}

func newThrottle(t *testing.T, max int) (*rate.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	l, err := rate.New(rdb, rate.Config{MaxFailures: max, Window: time.Minute})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return l, mr
}

func TestAuthenticateThrottlesFailedLogins(t *testing.T) {
	static := identity.NewStaticVerifier()
	static.Put("good", alice)
	throttle, _ := newThrottle(t, 2)
	deps := AuthenticateDeps{Verifier: static, Throttle: throttle}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res := RunAuthenticate(ctx, "bad", "10.0.0.1", deps); res.Failure != FailureIdentity {
			t.Fatalf("attempt %d: expected identity failure, got %v", i, res.Failure)
		}
	}
	res := RunAuthenticate(ctx, "good", "10.0.0.1", deps)
	if res.Failure != FailureRateLimited || !errors.Is(res.Err, rate.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v %v", res.Failure, res.Err)
	}
	if res := RunAuthenticate(ctx, "good", "10.0.0.2", deps); res.Failure != FailureNone {
		t.Fatalf("other client must pass, got %v", res.Failure)
	}
}

func TestAuthenticateSuccessResetsThrottle(t *testing.T) {
	static := identity.NewStaticVerifier()
	static.Put("good", alice)
	throttle, _ := newThrottle(t, 2)
	deps := AuthenticateDeps{Verifier: static, Throttle: throttle}
	ctx := context.Background()

	_ = RunAuthenticate(ctx, "bad", "c", deps)
	if res := RunAuthenticate(ctx, "good", "c", deps); res.Failure != FailureNone || res.ThrottleErr != nil {
		t.Fatalf("expected success, got %v %v", res.Failure, res.ThrottleErr)
	}
	if n, _ := throttle.Failures(ctx, "c"); n != 0 {
		t.Fatalf("expected counter reset, got %d", n)
	}
}

func TestAuthenticateThrottleBackendDown(t *testing.T) {
	static := identity.NewStaticVerifier()
	static.Put("good", alice)
	throttle, mr := newThrottle(t, 2)
	mr.SetError("LOADING")
	deps := AuthenticateDeps{Verifier: static, Throttle: throttle}

	res := RunAuthenticate(context.Background(), "good", "c", deps)
	if res.Failure != FailureCacheUnavailable {
		t.Fatalf("expected cache unavailable, got %v", res.Failure)
	}
}

// stallThrottle blocks every call until its context ends.
type stallThrottle struct{ calls int }

func (s *stallThrottle) wait(ctx context.Context, _ string) error {
	s.calls++
	<-ctx.Done()
	return errors.Join(rate.ErrRedisUnavailable, ctx.Err())
}

func (s *stallThrottle) Check(ctx context.Context, client string) error { return s.wait(ctx, client) }
func (s *stallThrottle) RecordFailure(ctx context.Context, client string) error {
	return s.wait(ctx, client)
}
func (s *stallThrottle) Reset(ctx context.Context, client string) error { return s.wait(ctx, client) }

func TestAuthenticateThrottleCallsAreBounded(t *testing.T) {
	static := identity.NewStaticVerifier()
	static.Put("good", alice)
	stall := &stallThrottle{}
	deps := AuthenticateDeps{Verifier: static, Throttle: stall, ThrottleTimeout: 20 * time.Millisecond}

	start := time.Now()
	res := RunAuthenticate(context.Background(), "good", "c", deps)
	if res.Failure != FailureCacheUnavailable {
		t.Fatalf("expected cache unavailable, got %v", res.Failure)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", res.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("throttle check not bounded: %v", elapsed)
	}
	if stall.calls != 1 {
		t.Fatalf("expected one throttle call, got %d", stall.calls)
	}
}
