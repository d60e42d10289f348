package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := New(rdb, Config{MaxFailures: max, Window: time.Minute, KeyPrefix: "ab:"})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return l, mr
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, mr := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
		if err := l.RecordFailure(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := l.Check(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other client must not be throttled: %v", err)
	}

	if ttl := mr.TTL("ab:throttle:login:10.0.0.1"); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.Check(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestLimiterReset(t *testing.T) {
	l, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "c")
	_ = l.RecordFailure(ctx, "c")
	if n, _ := l.Failures(ctx, "c"); n != 2 {
		t.Fatalf("expected 2 failures, got %d", n)
	}
	if err := l.Reset(ctx, "c"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.Failures(ctx, "c"); n != 0 {
		t.Fatalf("expected counter cleared, got %d", n)
	}
}

func TestLimiterIgnoresEmptyClient(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = l.RecordFailure(ctx, "")
	}
	if err := l.Check(ctx, ""); err != nil {
		t.Fatalf("empty client must not be throttled: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestLimiterRedisFailure(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	mr.SetError("LOADING")

	if err := l.Check(context.Background(), "c"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.RecordFailure(context.Background(), "c"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, Config{MaxFailures: 1, Window: time.Second}); err == nil {
		t.Fatal("expected nil client error")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := New(rdb, Config{Window: time.Second}); err == nil {
		t.Fatal("expected MaxFailures error")
	}
	if _, err := New(rdb, Config{MaxFailures: 1}); err == nil {
		t.Fatal("expected Window error")
	}
}
