package httpapi

import (
	"context"
	"net/http"

	"github.com/authbridge/authbridge"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Gateway is the subset of *authbridge.Gateway served over HTTP.
type Gateway interface {
	Login(ctx context.Context, credential, role string) (*authbridge.LoginResult, error)
	Verify(ctx context.Context, accessToken, refreshToken string) (*authbridge.VerifyResult, error)
	Refresh(ctx context.Context, refreshToken string) (*authbridge.RefreshResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Health(ctx context.Context) authbridge.HealthReport
	Status() string
}

// Option configures NewHandler.
type Option func(*server)

// WithLogger sets the access and error logger.
func WithLogger(logger logr.Logger) Option {
	return func(s *server) { s.logger = logger }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *server) { s.metrics = h }
}

// WithAllowedOrigin overrides the CORS origin (default "*").
func WithAllowedOrigin(origin string) Option {
	return func(s *server) { s.allowedOrigin = origin }
}

// WithTrustedProxy takes the client IP from X-Forwarded-For / X-Real-IP.
// Only enable it behind a proxy that overwrites those headers; the client IP
// keys the login throttle.
func WithTrustedProxy() Option {
	return func(s *server) { s.trustProxy = true }
}

type server struct {
	gateway       Gateway
	logger        logr.Logger
	metrics       http.Handler
	allowedOrigin string
	trustProxy    bool
}

// NewHandler returns the HTTP router for gw with panic recovery, request ids,
// access logs, security headers and CORS applied.
func NewHandler(gw Gateway, opts ...Option) http.Handler {
	s := &server{gateway: gw, allowedOrigin: "*"}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger.GetSink() == nil {
		s.logger = logr.Discard()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if s.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestContext, s.accessLog, securityHeaders, s.cors)

	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/login", s.handleLogin)
		auth.Get("/verify", s.handleVerify)
		auth.Post("/verify", s.handleVerify)
		auth.Get("/refresh", s.handleRefresh)
		auth.Post("/refresh", s.handleRefresh)
		auth.Post("/logout", s.handleLogout)
		auth.Get("/status", s.handleStatus)
		auth.Get("/health", s.handleHealth)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}
