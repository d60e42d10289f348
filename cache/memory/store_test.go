package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/authbridge/authbridge/cache"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store, *clock) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	return New(WithClock(c.Now)), c
}

func TestSetGetExpires(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("get before expiry: v=%q ok=%v err=%v", v, ok, err)
	}

	c.Advance(time.Minute)
	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected key gone after ttl, ok=%v err=%v", ok, err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped, len=%d", s.Len())
	}
}

func TestDeleteReportsPresenceAndIsIdempotent(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	existed, err := s.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = s.Delete(ctx, "k")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}

	if err := s.Set(ctx, "old", "v", time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.Advance(2 * time.Second)
	if existed, _ := s.Delete(ctx, "old"); existed {
		t.Fatal("expired key must not be reported as present")
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	if err := s.Set(ctx, "k", "v", 0); !errors.Is(err, cache.ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
	if err := s.Set(ctx, "", "v", time.Second); !errors.Is(err, cache.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	if !s.Ping(ctx) {
		t.Fatal("expected open store to ping")
	}
	_ = s.Close()
	if s.Ping(ctx) {
		t.Fatal("expected closed store to fail ping")
	}
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, cache.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := s.Set(ctx, "k", "v", time.Second); !errors.Is(err, cache.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	s, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, cache.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSweep(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()
	_ = s.Set(ctx, "a", "1", time.Second)
	_ = s.Set(ctx, "b", "2", time.Hour)
	c.Advance(time.Minute)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("expected one swept entry, got %d", n)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one remaining entry, got %d", s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Set(ctx, "k", "v", time.Minute)
				_, _, _ = s.Get(ctx, "k")
				_, _ = s.Delete(ctx, "k")
			}
		}()
	}
	wg.Wait()
}
