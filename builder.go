package authbridge

import (
	"errors"
	"strings"
	"time"

	"github.com/authbridge/authbridge/cache"
	"github.com/authbridge/authbridge/cache/redisstore"
	"github.com/authbridge/authbridge/identity"
	internalaudit "github.com/authbridge/authbridge/internal/audit"
	"github.com/authbridge/authbridge/internal/flows"
	"github.com/authbridge/authbridge/internal/rate"
	"github.com/authbridge/authbridge/jwt"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Gateway]. It is single use.
type Builder struct {
	config Config
	store  cache.Store
	redis  redis.UniversalClient

	verifier  identity.Verifier
	auditSink AuditSink
	logger    logr.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCache sets the cache store. It takes precedence over WithRedis.
func (b *Builder) WithCache(store cache.Store) *Builder {
	b.store = store
	return b
}

// WithRedis uses client as the cache store. The caller keeps ownership of
// the client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityVerifier sets the federated identity verifier used by Login.
// Without one, Login fails with ErrIdentityProvider.
func (b *Builder) WithIdentityVerifier(v identity.Verifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink sets the sink fed by the audit dispatcher when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. The zero value discards output.
func (b *Builder) WithLogger(logger logr.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issue and verification.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Gateway.
func (b *Builder) Build() (*Gateway, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("cache store or redis client required")
		}
		rs, err := redisstore.New(b.redis)
		if err != nil {
			return nil, err
		}
		store = rs
	}

	var throttle flows.Throttle
	if cfg.Throttle.Enabled {
		client := b.redis
		if rs, ok := store.(*redisstore.Store); ok && client == nil {
			client = rs.Client()
		}
		if client == nil {
			return nil, errors.New("login throttling requires a redis client")
		}
		limiter, err := rate.New(client, rate.Config{
			MaxFailures: cfg.Throttle.MaxFailures,
			Window:      cfg.Throttle.Window,
			KeyPrefix:   cfg.Cache.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		throttle = limiter
	}
	store = cache.WithTimeout(store, cfg.Cache.Timeout)

	now := b.now
	if now == nil {
		now = time.Now
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	keys := cache.Keys{Prefix: cfg.Cache.KeyPrefix}
	refreshDeps := flows.RefreshDeps{
		VerifyRefresh: jm.VerifyRefresh,
		IssueAccess:   jm.IssueAccess,
		Cache:         store,
		Keys:          keys,
		GraceTTL:      cfg.Cache.GraceTTL,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	}

	gateway := &Gateway{
		config:     cloneConfig(cfg),
		jwtManager: jm,
		store:      store,
		logger:     logger.WithName("authbridge"),
		now:        now,
	}
	gateway.flows = flows.New(flows.Deps{
		Verify: flows.VerifyDeps{
			VerifyAccess: jm.VerifyAccess,
			Cache:        store,
			Keys:         keys,
			Refresh:      refreshDeps,
		},
		Refresh: refreshDeps,
		Authenticate: flows.AuthenticateDeps{
			Verifier:             b.verifier,
			Timeout:              cfg.Identity.Timeout,
			RequireVerifiedEmail: cfg.Identity.RequireVerifiedEmail,
			Throttle:             throttle,
			ThrottleTimeout:      cfg.Cache.Timeout,
		},
		Login: flows.LoginDeps{
			IssueAccess:  jm.IssueAccess,
			IssueRefresh: jm.IssueRefresh,
			DefaultRole:  cfg.Identity.DefaultRole,
		},
		Logout: flows.LogoutDeps{
			VerifyAccess:  jm.VerifyAccess,
			VerifyRefresh: jm.VerifyRefresh,
			Cache:         store,
			Keys:          keys,
			Leeway:        cfg.JWT.Leeway,
			Now:           now,
		},
		Health: flows.HealthDeps{
			Cache: store,
			Now:   now,
		},
	})
	gateway.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		EmitTimeout: cfg.Audit.EmitTimeout,
		Now:         now,
	}, b.auditSink)
	gateway.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return gateway, nil
}
