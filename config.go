package authbridge

import (
	"errors"
	"strings"
	"time"

	internalmetrics "github.com/authbridge/authbridge/internal/metrics"
)

// Config is the complete Gateway configuration. Start from [DefaultConfig]
// and override what differs; the Builder clones it on use.
type Config struct {
	JWT      JWTConfig
	Cache    CacheConfig
	Identity IdentityConfig
	Throttle ThrottleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session token signing and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// KeyID and VerifyKeys enable key rotation: tokens carry KeyID in their
	// header and are verified against VerifyKeys[kid].
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the token cache and revocation registry.
type CacheConfig struct {
	// GraceTTL is how long a freshly rotated access token stays reachable
	// through cached-<token>.
	GraceTTL time.Duration
	// Timeout bounds every cache call. Zero disables the bound.
	Timeout time.Duration
	// KeyPrefix is prepended to every key, e.g. "authbridge:".
	KeyPrefix string
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig controls federated login.
type IdentityConfig struct {
	// Timeout bounds the identity provider call.
	Timeout              time.Duration
	DefaultRole          string
	RequireVerifiedEmail bool
}

// ThrottleConfig limits failed logins per client IP. It needs a Redis
// client, given to the Builder directly or through a redisstore cache.
type ThrottleConfig struct {
	Enabled     bool
	MaxFailures int
	Window      time.Duration
}

// AuditConfig controls async audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// EmitTimeout bounds how long a request waits for buffer space when
	// DropIfFull is false, and how long the sink gets per event.
	EmitTimeout time.Duration
}

// MetricsConfig toggles in-process counters and the verify latency histogram.
type MetricsConfig = internalmetrics.Config

// DefaultConfig returns the production defaults. JWT.PrivateKey must still be
// supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Cache: CacheConfig{
			GraceTTL: 30 * time.Second,
			Timeout:  2 * time.Second,
		},
		Identity: IdentityConfig{
			Timeout: 5 * time.Second,
		},
		Throttle: ThrottleConfig{
			Enabled:     false,
			MaxFailures: 10,
			Window:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			EmitTimeout: 250 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error. Signing-key shape is
// checked again by the token manager at build time.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL > c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be <= RefreshTTL")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be <= 2m")
	}

	method := strings.ToLower(c.JWT.SigningMethod)
	if method != "ed25519" && method != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if method == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if method == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if method == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}

	// Cache
	if c.Cache.GraceTTL <= 0 {
		return errors.New("Cache GraceTTL must be > 0")
	}
	if c.Cache.GraceTTL > c.JWT.AccessTTL {
		return errors.New("Cache GraceTTL must be <= JWT AccessTTL")
	}
	if c.Cache.Timeout < 0 {
		return errors.New("Cache Timeout must be >= 0")
	}

	// Identity
	if c.Identity.Timeout < 0 {
		return errors.New("Identity Timeout must be >= 0")
	}

	// Throttle
	if c.Throttle.Enabled && c.Throttle.MaxFailures <= 0 {
		return errors.New("Throttle MaxFailures must be > 0 when throttling is enabled")
	}
	if c.Throttle.Enabled && c.Throttle.Window <= 0 {
		return errors.New("Throttle Window must be > 0 when throttling is enabled")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.EmitTimeout < 0 {
		return errors.New("Audit EmitTimeout must be >= 0")
	}

	return nil
}
