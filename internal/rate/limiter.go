package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds throttle tuning parameters.
type Config struct {
	// MaxFailures is the number of failed logins allowed per window.
	MaxFailures int
	// Window is the fixed window length, started by the first failure.
	Window time.Duration
	// KeyPrefix is shared with the token cache keys.
	KeyPrefix string
}

// Limiter counts failed logins per client using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("rate: redis client is nil")
	}
	if cfg.MaxFailures <= 0 {
		return nil, errors.New("rate: MaxFailures must be > 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("rate: Window must be > 0")
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}, nil
}

// Check returns ErrRateLimited when client has used up its failure budget.
// An empty client is never throttled.
func (l *Limiter) Check(ctx context.Context, client string) error {
	if client == "" {
		return nil
	}

	count, err := l.redis.Get(ctx, l.key(client)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}

	return nil
}

// RecordFailure counts one failed login for client.
func (l *Limiter) RecordFailure(ctx context.Context, client string) error {
	if client == "" {
		return nil
	}

	key := l.key(client)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return nil
}

// Reset clears the failure counter for client after a successful login.
func (l *Limiter) Reset(ctx context.Context, client string) error {
	if client == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(client)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Failures returns the current failure count for client.
func (l *Limiter) Failures(ctx context.Context, client string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(client)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(client string) string {
	return l.config.KeyPrefix + "throttle:login:" + client
}
