// Package cache defines the key/value store shared by the session core for
// rotated-token grace entries and revocation tombstones.
//
// # Architecture boundaries
//
// A [Store] only moves opaque strings with a time-to-live. The decision of
// what to write and when belongs to the session flows; key layout belongs to
// [Keys].
//
// # What this package must NOT do
//
//   - Interpret tokens.
//   - Report a backend failure as an absent key.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable is returned when the backend could not be reached, failed,
	// or did not answer in time. It is never folded into an absent result.
	ErrUnavailable = errors.New("cache unavailable")
	// ErrInvalidTTL is returned by Set for a non-positive TTL.
	ErrInvalidTTL = errors.New("cache: ttl must be greater than zero")
	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("cache: key is required")
)

// Store is a string key/value store with per-key expiry. Implementations must
// be safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key. The key is unreadable once ttl elapses.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key and reports whether it existed. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, key string) (bool, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) bool
	// Close releases backend resources.
	Close() error
}

const (
	cachedNamespace      = "cached-"
	invalidatedNamespace = "invalidated-"
)

// Keys builds the two disjoint key namespaces used by the session core.
type Keys struct {
	// Prefix is prepended to every key, for sharing a backend between
	// deployments.
	Prefix string
}

// Cached returns the grace-window key for token.
func (k Keys) Cached(token string) string {
	return k.Prefix + cachedNamespace + token
}

// Invalidated returns the tombstone key for token.
func (k Keys) Invalidated(token string) string {
	return k.Prefix + invalidatedNamespace + token
}

// ValidateSet checks the common preconditions of Store.Set.
func ValidateSet(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// WithTimeout bounds every call on store by d. Deadline and cancellation
// failures surface as ErrUnavailable. A non-positive d returns store unchanged.
func WithTimeout(store Store, d time.Duration) Store {
	if d <= 0 {
		return store
	}
	return &timeoutStore{next: store, timeout: d}
}

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

func (s *timeoutStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, ok, err := s.next.Get(ctx, key)
	return v, ok, unavailable(ctx, err)
}

func (s *timeoutStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return unavailable(ctx, s.next.Set(ctx, key, value, ttl))
}

func (s *timeoutStore) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.next.Delete(ctx, key)
	return ok, unavailable(ctx, err)
}

func (s *timeoutStore) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Ping(ctx)
}

func (s *timeoutStore) Close() error { return s.next.Close() }

func unavailable(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
