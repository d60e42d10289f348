// Package redisstore implements [cache.Store] on Redis.
//
// Every operation is a single Redis command (GET, SET PX, DEL, PING), so a
// write either lands completely or not at all. Command failures, including
// client-side timeouts, surface as [cache.ErrUnavailable]; only redis.Nil
// means absent.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authbridge/authbridge/cache"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for a Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// Password for AUTH. ENV: REDIS_PASSWORD
	Password string `env:"REDIS_PASSWORD"`
	// DB selects the logical database. ENV: REDIS_DB
	DB int `env:"REDIS_DB,default=0"`
	// DialTimeout bounds connection establishment. ENV: REDIS_DIAL_TIMEOUT
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT,default=2s"`
}

// ConfigFromEnv decodes Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("redisstore: decode env: %w", err)
	}
	return cfg, nil
}

// NewClient builds a go-redis client from cfg without contacting the server.
func NewClient(cfg Config) *redis.Client {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
}

// Store implements cache.Store with a go-redis client.
type Store struct {
	client    redis.UniversalClient
	ownClient bool
}

var _ cache.Store = (*Store)(nil)

// New wraps an existing client. Close does not close a client passed here.
func New(client redis.UniversalClient) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: client is required")
	}
	return &Store{client: client}, nil
}

// Dial creates a client from cfg and verifies connectivity with PING.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	client := NewClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", cache.ErrUnavailable, err)
	}
	return &Store{client: client, ownClient: true}, nil
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, cache.ErrEmptyKey
	}
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return v, true, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := cache.ValidateSet(key, ttl); err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, cache.ErrEmptyKey
	}
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return n > 0, nil
}

// Ping implements cache.Store.
func (s *Store) Ping(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Client returns the underlying go-redis client, for callers that share the
// connection pool.
func (s *Store) Client() redis.UniversalClient {
	return s.client
}

// Close closes the client when the store created it.
func (s *Store) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}
