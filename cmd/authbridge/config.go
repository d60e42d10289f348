package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/authbridge/authbridge"
	"github.com/authbridge/authbridge/cache/redisstore"
	"github.com/joeshaw/envdecode"
)

// config is the process configuration, read from the environment.
type config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=8080"`
	TrustProxy bool   `env:"TRUST_PROXY,default=false"`

	JWTSecret  string        `env:"JWT_SECRET"`
	JWTIssuer  string        `env:"JWT_ISSUER,default=authbridge"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL,default=1h"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL,default=720h"`

	CacheGraceTTL  time.Duration `env:"CACHE_GRACE_TTL,default=30s"`
	CacheTimeout   time.Duration `env:"CACHE_TIMEOUT,default=2s"`
	CacheKeyPrefix string        `env:"CACHE_KEY_PREFIX"`

	IdentityTimeout      time.Duration `env:"IDENTITY_TIMEOUT,default=5s"`
	DefaultRole          string        `env:"DEFAULT_ROLE"`
	RequireVerifiedEmail bool          `env:"REQUIRE_VERIFIED_EMAIL,default=false"`

	// LoginThrottleMax of zero disables failed-login throttling.
	LoginThrottleMax    int           `env:"LOGIN_THROTTLE_MAX,default=0"`
	LoginThrottleWindow time.Duration `env:"LOGIN_THROTTLE_WINDOW,default=15m"`

	Redis redisstore.Config

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	OIDCIssuer        string `env:"OIDC_ISSUER"`
	OIDCClientID      string `env:"OIDC_CLIENT_ID"`
	JWKSURL           string `env:"JWKS_URL"`
	JWKSIssuer        string `env:"JWKS_ISSUER"`
	JWKSAudience      string `env:"JWKS_AUDIENCE"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
	LogFile   string `env:"LOG_FILE"`

	MetricsEnabled bool `env:"METRICS_ENABLED,default=true"`
	AuditEnabled   bool `env:"AUDIT_ENABLED,default=false"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := envdecode.StrictDecode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

func (c config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// gatewayConfig maps the environment onto the library configuration.
func (c config) gatewayConfig() (authbridge.Config, error) {
	if c.JWTSecret == "" {
		return authbridge.Config{}, errors.New("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return authbridge.Config{}, errors.New("JWT_SECRET must be at least 32 bytes")
	}

	cfg := authbridge.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.Cache.GraceTTL = c.CacheGraceTTL
	cfg.Cache.Timeout = c.CacheTimeout
	cfg.Cache.KeyPrefix = c.CacheKeyPrefix
	cfg.Identity.Timeout = c.IdentityTimeout
	cfg.Identity.DefaultRole = c.DefaultRole
	cfg.Identity.RequireVerifiedEmail = c.RequireVerifiedEmail
	if c.LoginThrottleMax > 0 {
		cfg.Throttle.Enabled = true
		cfg.Throttle.MaxFailures = c.LoginThrottleMax
		cfg.Throttle.Window = c.LoginThrottleWindow
	}
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	cfg.Audit.Enabled = c.AuditEnabled

	if err := cfg.Validate(); err != nil {
		return authbridge.Config{}, err
	}
	return cfg, nil
}
