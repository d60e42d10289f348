package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/authbridge/authbridge/cache"
	"github.com/authbridge/authbridge/cache/memory"
	"github.com/authbridge/authbridge/identity"
	"github.com/authbridge/authbridge/jwt"
)

var alice = identity.Identity{UID: "u1", Email: "a@b.com", EmailVerified: true, Role: "member"}

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

type harness struct {
	clock *testClock
	codec *jwt.Manager
	store *memory.Store
	keys  cache.Keys
	deps  Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	codec, err := jwt.NewManager(jwt.Config{
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
		PrivateKey: []byte("flows-test-secret-flows-test-secret"),
		Issuer:     "authbridge",
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	h := &harness{
		clock: clock,
		codec: codec,
		store: memory.New(memory.WithClock(clock.Now)),
		keys:  cache.Keys{Prefix: "t:"},
	}
	h.deps = h.wire(h.store)
	return h
}

func (h *harness) wire(store CacheStore) Deps {
	refresh := RefreshDeps{
		VerifyRefresh: h.codec.VerifyRefresh,
		IssueAccess:   h.codec.IssueAccess,
		Cache:         store,
		Keys:          h.keys,
		GraceTTL:      30 * time.Second,
		Now:           h.clock.Now,
	}
	return Deps{
		Verify: VerifyDeps{
			VerifyAccess: h.codec.VerifyAccess,
			Cache:        store,
			Keys:         h.keys,
			Refresh:      refresh,
		},
		Refresh: refresh,
		Login: LoginDeps{
			IssueAccess:  h.codec.IssueAccess,
			IssueRefresh: h.codec.IssueRefresh,
			DefaultRole:  "user",
		},
		Logout: LogoutDeps{
			VerifyAccess:  h.codec.VerifyAccess,
			VerifyRefresh: h.codec.VerifyRefresh,
			Cache:         store,
			Keys:          h.keys,
			Now:           h.clock.Now,
		},
		Health: HealthDeps{Cache: store, Now: h.clock.Now},
	}
}

func (h *harness) login(t *testing.T) LoginResult {
	t.Helper()
	res := RunLogin(context.Background(), alice, "", h.deps.Login)
	if res.Failure != FailureNone {
		t.Fatalf("login failed: %v %v", res.Failure, res.Err)
	}
	return res
}

func (h *harness) has(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := h.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store get %s: %v", key, err)
	}
	return v, ok
}

var errBackend = errors.New("connection refused")

// brokenStore fails every call once broken is set.
type brokenStore struct {
	CacheStore
	mu       sync.Mutex
	failGet  bool
	failSet  bool
	failDel  bool
	setCalls int
}

func (b *brokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	fail := b.failGet
	b.mu.Unlock()
	if fail {
		return "", false, errors.Join(cache.ErrUnavailable, errBackend)
	}
	return b.CacheStore.Get(ctx, key)
}

func (b *brokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	fail := b.failSet
	b.setCalls++
	b.mu.Unlock()
	if fail {
		return errors.Join(cache.ErrUnavailable, errBackend)
	}
	return b.CacheStore.Set(ctx, key, value, ttl)
}

func (b *brokenStore) Delete(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	fail := b.failDel
	b.mu.Unlock()
	if fail {
		return false, errors.Join(cache.ErrUnavailable, errBackend)
	}
	return b.CacheStore.Delete(ctx, key)
}

func (b *brokenStore) Ping(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.failGet
}

// hookStore calls onMiss once, the first time key is read and found absent.
type hookStore struct {
	CacheStore
	key    string
	onMiss func()
	once   sync.Once
}

func (s *hookStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.CacheStore.Get(ctx, key)
	if err == nil && !ok && key == s.key && s.onMiss != nil {
		s.once.Do(s.onMiss)
	}
	return v, ok, err
}
