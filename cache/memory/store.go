// Package memory provides an in-process [cache.Store] for tests and
// single-instance development deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/authbridge/authbridge/cache"
)

type entry struct {
	value   string
	expires time.Time
}

// Store keeps entries in a map guarded by a RWMutex. Expired entries are
// dropped lazily on read and by Sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	closed  bool
}

var _ cache.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: map[string]entry{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(ctx); err != nil {
		return "", false, err
	}
	now := s.now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	if !now.Before(e.expires) {
		s.mu.Lock()
		if cur, still := s.entries[key]; still && cur.expires == e.expires {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := cache.ValidateSet(key, ttl); err != nil {
		return err
	}
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[key] = entry{value: value, expires: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return now.Before(e.expires), nil
}

// Ping implements cache.Store.
func (s *Store) Ping(ctx context.Context) bool {
	return s.check(ctx) == nil
}

// Close marks the store unavailable. Subsequent calls fail with
// cache.ErrUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.entries = map[string]entry{}
	s.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: store closed", cache.ErrUnavailable)
	}
	return nil
}
