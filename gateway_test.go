package authbridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/authbridge/authbridge/cache/memory"
	"github.com/authbridge/authbridge/identity"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type gatewayHarness struct {
	gateway  *Gateway
	mr       *miniredis.Miniredis
	verifier *identity.StaticVerifier
	clock    *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = testSecret
	cfg.JWT.Issuer = "authbridge"
	cfg.Identity.DefaultRole = "member"
	return cfg
}

func newGatewayHarness(t *testing.T, cfg Config, configure ...func(*Builder)) (*gatewayHarness, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	verifier := identity.NewStaticVerifier()
	verifier.Put("cred-u1", identity.Identity{UID: "u1", Email: "a@b.com", EmailVerified: true})

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityVerifier(verifier).
		WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}
	g, err := b.Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return &gatewayHarness{gateway: g, mr: mr, verifier: verifier, clock: clock}, func() {
		g.Close()
		rdb.Close()
		mr.Close()
	}
}

func (h *gatewayHarness) login(t *testing.T) *LoginResult {
	t.Helper()
	res, err := h.gateway.Login(context.Background(), "cred-u1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func TestGatewayLoginIssuesPairForUID(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	res := h.login(t)
	if res.AccessToken == "" || res.RefreshToken == "" || res.AccessToken == res.RefreshToken {
		t.Fatal("expected distinct access and refresh tokens")
	}

	ac, err := h.gateway.jwtManager.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("access token does not decode: %v", err)
	}
	rc, err := h.gateway.jwtManager.VerifyRefresh(res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token does not decode: %v", err)
	}
	if ac.UID != "u1" || rc.UID != "u1" {
		t.Fatalf("expected uid u1, got access=%q refresh=%q", ac.UID, rc.UID)
	}
	if ac.Email != "a@b.com" || !ac.EmailVerified || ac.Role != "member" {
		t.Fatalf("unexpected access claims: %+v", ac)
	}
	if want := h.clock.Now().Add(time.Hour); !res.AccessExpiresAt.Equal(want) {
		t.Fatalf("expected access expiry %v, got %v", want, res.AccessExpiresAt)
	}
	if want := h.clock.Now().Add(30 * 24 * time.Hour); !res.RefreshExpiresAt.Equal(want) {
		t.Fatalf("expected refresh expiry %v, got %v", want, res.RefreshExpiresAt)
	}
	if keys := h.mr.Keys(); len(keys) != 0 {
		t.Fatalf("login must not write cache state, got %v", keys)
	}
}

func TestGatewayLoginExplicitRoleWins(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	h.verifier.Put("cred-u2", identity.Identity{UID: "u2", Role: "editor"})

	res, err := h.gateway.Login(context.Background(), "cred-u2", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Identity.Role != "editor" {
		t.Fatalf("expected provider role, got %q", res.Identity.Role)
	}

	res, err = h.gateway.Login(context.Background(), "cred-u2", "admin")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Identity.Role != "admin" {
		t.Fatalf("expected explicit role, got %q", res.Identity.Role)
	}
}

func TestGatewayLoginIdentityFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Identity.RequireVerifiedEmail = true
	h, done := newGatewayHarness(t, cfg)
	defer done()

	h.verifier.Put("cred-unverified", identity.Identity{UID: "u3", EmailVerified: false})

	tests := []struct {
		name       string
		credential string
		reason     string
	}{
		{name: "missing", credential: "  ", reason: ReasonMissingCredential},
		{name: "unknown", credential: "forged", reason: ReasonIdentityProvider},
		{name: "unverified email", credential: "cred-unverified", reason: ReasonIdentityProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.gateway.Login(context.Background(), tt.credential, "")
			if err == nil {
				t.Fatal("expected login failure")
			}
			if OutcomeOf(err) != OutcomeUnauthorized {
				t.Fatalf("expected unauthorized, got %v", OutcomeOf(err))
			}
			if ReasonOf(err) != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, ReasonOf(err))
			}
			if !errors.Is(err, ErrIdentityProvider) {
				t.Fatalf("expected ErrIdentityProvider, got %v", err)
			}
		})
	}
}

func TestGatewayLoginProviderTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Identity.Timeout = 20 * time.Millisecond
	slow := identity.VerifierFunc(func(ctx context.Context, _ string) (identity.Identity, error) {
		<-ctx.Done()
		return identity.Identity{}, ctx.Err()
	})
	h, done := newGatewayHarness(t, cfg, func(b *Builder) { b.WithIdentityVerifier(slow) })
	defer done()

	start := time.Now()
	_, err := h.gateway.Login(context.Background(), "cred-u1", "")
	if !errors.Is(err, ErrIdentityProvider) {
		t.Fatalf("expected ErrIdentityProvider, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("login was not bounded by the identity timeout")
	}
	var e *Error
	if !errors.As(err, &e) || !errors.Is(e.Cause(), identity.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable cause, got %v", err)
	}
}

func TestGatewayVerifyLiveToken(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	res, err := h.gateway.Verify(context.Background(), login.AccessToken, "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Rotated || res.AccessToken != login.AccessToken || res.Claims.UID != "u1" {
		t.Fatalf("unexpected verify result: %+v", res)
	}
}

func TestGatewayVerifyExpiredWithoutRefreshRequiresRefresh(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	h.clock.Advance(2 * time.Hour)

	_, err := h.gateway.Verify(context.Background(), login.AccessToken, "")
	if !errors.Is(err, ErrRefreshRequired) {
		t.Fatalf("expected ErrRefreshRequired, got %v", err)
	}
	if ReasonOf(err) != ReasonRefreshRequired || OutcomeOf(err) != OutcomeUnauthorized {
		t.Fatalf("unexpected classification %q/%v", ReasonOf(err), OutcomeOf(err))
	}
}

func TestGatewayVerifyExpiredWithRefreshRotates(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.KeyPrefix = "ab:"
	h, done := newGatewayHarness(t, cfg)
	defer done()

	login := h.login(t)
	h.clock.Advance(2 * time.Hour)

	res, err := h.gateway.Verify(context.Background(), login.AccessToken, login.RefreshToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Rotated || res.AccessToken == login.AccessToken {
		t.Fatalf("expected a rotated access token, got %+v", res)
	}
	if !h.mr.Exists("ab:cached-" + res.AccessToken) {
		t.Fatal("expected cached-<new token> to be present")
	}
	if got, _ := h.mr.Get("ab:cached-" + login.AccessToken); got != res.AccessToken {
		t.Fatal("expected the expired token to point at its successor")
	}
	if ttl := h.mr.TTL("ab:cached-" + res.AccessToken); ttl != cfg.Cache.GraceTTL {
		t.Fatalf("expected grace ttl %v, got %v", cfg.Cache.GraceTTL, ttl)
	}

	again, err := h.gateway.Verify(context.Background(), res.AccessToken, "")
	if err != nil || again.Rotated {
		t.Fatalf("rotated token must verify directly: %+v %v", again, err)
	}

	// A late request with the old token follows the pointer, no refresh token needed.
	late, err := h.gateway.Verify(context.Background(), login.AccessToken, "")
	if err != nil {
		t.Fatalf("verify through cached successor: %v", err)
	}
	if late.AccessToken != res.AccessToken || !late.Rotated {
		t.Fatalf("expected cached successor, got %+v", late)
	}
}

func TestGatewayLogoutRevokesAccessToken(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	if err := h.gateway.Logout(context.Background(), login.AccessToken, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	_, err := h.gateway.Verify(context.Background(), login.AccessToken, "")
	if !errors.Is(err, ErrTokenRevoked) || ReasonOf(err) != ReasonRevoked {
		t.Fatalf("expected revoked, got %v", err)
	}

	_, err = h.gateway.Refresh(context.Background(), login.RefreshToken)
	if err == nil {
		t.Fatal("revoked refresh token must not mint")
	}

	ttl := h.mr.TTL("invalidated-" + login.AccessToken)
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("tombstone ttl must track remaining lifetime, got %v", ttl)
	}
}

func TestGatewayLogoutIdempotent(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	for i := 0; i < 2; i++ {
		if err := h.gateway.Logout(context.Background(), login.AccessToken, login.RefreshToken); err != nil {
			t.Fatalf("logout #%d: %v", i+1, err)
		}
	}
}

func TestGatewayLogoutRequiresRefreshToken(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	err := h.gateway.Logout(context.Background(), login.AccessToken, "")
	if OutcomeOf(err) != OutcomeBadRequest || ReasonOf(err) != ReasonMissingRefreshToken {
		t.Fatalf("expected bad request, got %v", err)
	}
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestGatewayConcurrentVerifyOfExpiredToken(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	h.clock.Advance(2 * time.Hour)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	tokens := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.gateway.Verify(context.Background(), login.AccessToken, login.RefreshToken)
			if err != nil {
				errs <- err
				return
			}
			tokens <- res.AccessToken
		}()
	}
	wg.Wait()
	close(errs)
	close(tokens)

	for err := range errs {
		t.Fatalf("concurrent verify rejected: %v", err)
	}
	for tok := range tokens {
		if _, err := h.gateway.Verify(context.Background(), tok, ""); err != nil {
			t.Fatalf("minted token does not verify: %v", err)
		}
	}
}

func TestGatewayFailsClosedOnCacheError(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	h.mr.SetError("ERR backend exploded")

	_, err := h.gateway.Verify(context.Background(), login.AccessToken, "")
	if err == nil {
		t.Fatal("verify must not succeed without a revocation check")
	}
	if OutcomeOf(err) != OutcomeUnavailable || !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected cache unavailable, got %v", err)
	}
	if strings.Contains(err.Error(), "exploded") {
		t.Fatalf("backend detail leaked into error text: %q", err.Error())
	}

	err = h.gateway.Logout(context.Background(), login.AccessToken, login.RefreshToken)
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected logout to surface cache unavailable, got %v", err)
	}

	if h.gateway.Health(context.Background()).CacheAlive {
		t.Fatal("expected cache to be reported dead")
	}
	if h.gateway.Status() != StatusOK {
		t.Fatal("status must not depend on the cache")
	}

	h.mr.SetError("")
	if !h.gateway.Health(context.Background()).CacheAlive {
		t.Fatal("expected cache to be reported alive")
	}
}

func TestGatewayRefreshRejectsExpiredAndMalformed(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)

	_, err := h.gateway.Refresh(context.Background(), login.AccessToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("access token used as refresh must be rejected, got %v", err)
	}
	_, err = h.gateway.Refresh(context.Background(), "not.a.token")
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}

	h.clock.Advance(31 * 24 * time.Hour)
	_, err = h.gateway.Refresh(context.Background(), login.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected expired refresh token rejected, got %v", err)
	}
	_, err = h.gateway.Verify(context.Background(), login.AccessToken, login.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected verify with expired refresh rejected, got %v", err)
	}

	if keys := h.mr.Keys(); len(keys) != 0 {
		t.Fatalf("no token may be minted from an invalid refresh token, cache has %v", keys)
	}
}

func TestGatewayRefreshMintsAccessToken(t *testing.T) {
	h, done := newGatewayHarness(t, testConfig())
	defer done()

	login := h.login(t)
	h.clock.Advance(time.Minute)

	res, err := h.gateway.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.UserID != "u1" || res.AccessToken == login.AccessToken {
		t.Fatalf("unexpected refresh result: %+v", res)
	}
	if !h.mr.Exists("cached-" + res.AccessToken) {
		t.Fatal("expected refreshed token to be cached")
	}
	v, err := h.gateway.Verify(context.Background(), res.AccessToken, "")
	if err != nil || v.Claims.Role != "member" || !v.Claims.EmailVerified {
		t.Fatalf("refreshed token must reproduce login claims: %+v %v", v, err)
	}
}

func TestGatewayAuditAndMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	sink := NewChannelSink(16)
	h, done := newGatewayHarness(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	defer done()

	ctx := WithUserAgent(WithClientIP(WithRequestID(context.Background(), "req-1"), "10.0.0.1"), "curl/8.5")
	login, err := h.gateway.Login(ctx, "cred-u1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := h.gateway.Logout(ctx, login.AccessToken, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := h.gateway.Verify(ctx, login.AccessToken, ""); err == nil {
		t.Fatal("expected revoked")
	}
	h.gateway.Close()

	var events []AuditEvent
	for len(events) < 3 {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-time.After(time.Second):
			t.Fatalf("expected 3 audit events, got %d", len(events))
		}
	}

	if events[0].EventType != auditEventLoginSuccess || events[0].UserID != "u1" || events[0].TokenID == "" {
		t.Fatalf("unexpected login event: %+v", events[0])
	}
	if events[0].ClientIP != "10.0.0.1" || events[0].RequestID != "req-1" || events[0].UserAgent != "curl/8.5" {
		t.Fatalf("context values missing from audit event: %+v", events[0])
	}
	if !events[0].Timestamp.Equal(h.clock.Now()) {
		t.Fatalf("expected gateway clock timestamp, got %v", events[0].Timestamp)
	}
	if events[2].EventType != auditEventVerifyRejected || events[2].Reason != ReasonRevoked {
		t.Fatalf("unexpected verify event: %+v", events[2])
	}
	for _, ev := range events {
		for _, v := range ev.Metadata {
			if v == login.AccessToken || v == login.RefreshToken {
				t.Fatal("raw token leaked into audit metadata")
			}
		}
	}

	snap := h.gateway.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricLogout] != 1 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}
	if snap.Counters[MetricRevokedRejected] != 1 || snap.Counters[MetricTombstoneWritten] != 2 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}
	if got := snap.Rejections[Rejection{Op: "verify", Reason: ReasonRevoked}]; got != 1 {
		t.Fatalf("expected one revoked verify rejection, got %v", snap.Rejections)
	}
	if len(snap.Histograms[MetricVerifyLatency]) == 0 {
		t.Fatal("expected verify latency histogram")
	}
}

func TestBuilderValidation(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without a cache store")
	}

	bad := testConfig()
	bad.JWT.PrivateKey = nil
	if _, err := New().WithConfig(bad).WithCache(memory.New()).Build(); err == nil {
		t.Fatal("expected error without a signing key")
	}

	bad = testConfig()
	bad.Cache.GraceTTL = 2 * time.Hour
	if _, err := New().WithConfig(bad).WithCache(memory.New()).Build(); err == nil {
		t.Fatal("expected error for grace ttl above access ttl")
	}

	b := New().WithConfig(testConfig()).WithCache(memory.New())
	if _, err := b.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestGatewayWithoutVerifierRejectsLogin(t *testing.T) {
	g, err := New().WithConfig(testConfig()).WithCache(memory.New()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer g.Close()

	_, err = g.Login(context.Background(), "anything", "")
	if !errors.Is(err, ErrIdentityProvider) {
		t.Fatalf("expected ErrIdentityProvider, got %v", err)
	}
}

func TestZeroGatewayNotReady(t *testing.T) {
	var g Gateway
	if _, err := g.Verify(context.Background(), "x", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := g.Logout(context.Background(), "x", "y"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if g.Health(context.Background()).CacheAlive {
		t.Fatal("zero gateway cannot report a live cache")
	}
}

func TestGatewayThrottlesFailedLogins(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.KeyPrefix = "ab:"
	cfg.Throttle = ThrottleConfig{Enabled: true, MaxFailures: 2, Window: time.Minute}
	h, done := newGatewayHarness(t, cfg)
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	for i := 0; i < 2; i++ {
		if _, err := h.gateway.Login(ctx, "wrong", ""); !errors.Is(err, ErrIdentityProvider) {
			t.Fatalf("attempt %d: expected ErrIdentityProvider, got %v", i, err)
		}
	}

	_, err := h.gateway.Login(ctx, "cred-u1", "")
	if !errors.Is(err, ErrRateLimited) || OutcomeOf(err) != OutcomeTooManyRequests {
		t.Fatalf("expected throttled login, got %v", err)
	}
	if ReasonOf(err) != ReasonTooManyAttempts {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
	if !h.mr.Exists("ab:throttle:login:203.0.113.7") {
		t.Fatal("expected prefixed throttle counter")
	}

	other := WithClientIP(context.Background(), "203.0.113.8")
	if _, err := h.gateway.Login(other, "cred-u1", ""); err != nil {
		t.Fatalf("other client must not be throttled: %v", err)
	}
}

func TestBuilderThrottleNeedsRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Throttle.Enabled = true
	if _, err := New().WithConfig(cfg).WithCache(memory.New()).Build(); err == nil {
		t.Fatal("expected error for throttling without redis")
	}

	cfg.Throttle.MaxFailures = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected MaxFailures validation error")
	}
}
