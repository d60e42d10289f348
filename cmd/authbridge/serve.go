package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/authbridge/authbridge"
	"github.com/authbridge/authbridge/cache"
	"github.com/authbridge/authbridge/cache/redisstore"
	"github.com/authbridge/authbridge/httpapi"
	"github.com/authbridge/authbridge/identity"
	"github.com/authbridge/authbridge/identity/jwks"
	"github.com/authbridge/authbridge/identity/oidc"
	"github.com/authbridge/authbridge/metrics/export/prometheus"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	dev           bool
	devCredential string
	shutdown      time.Duration
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "use an in-process redis and a static identity provider")
	cmd.Flags().StringVar(&opts.devCredential, "dev-credential", "dev-token", "credential accepted by the static identity provider in --dev mode")
	cmd.Flags().DurationVar(&opts.shutdown, "shutdown-timeout", 10*time.Second, "graceful shutdown deadline")
	return cmd
}

func runServe(ctx context.Context, cfg config, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, logCloser, err := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, os.Stderr)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gwCfg, err := cfg.gatewayConfig()
	if err != nil {
		return err
	}

	var (
		store    cache.Store
		verifier identity.Verifier
	)
	if opts.dev {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start in-process redis: %w", err)
		}
		defer mr.Close()
		cfg.Redis.Addr = mr.Addr()

		static := identity.NewStaticVerifier()
		static.Put(opts.devCredential, identity.Identity{UID: "dev-user", Email: "dev@localhost", EmailVerified: true})
		verifier = static
		logger.Info("development mode", "redis", mr.Addr(), "credential", opts.devCredential)
	} else {
		verifier, err = newVerifier(ctx, cfg)
		if err != nil {
			return err
		}
	}

	rs, err := redisstore.Dial(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	store = rs
	defer store.Close()

	var sink authbridge.AuditSink
	if gwCfg.Audit.Enabled {
		sink = authbridge.NewJSONWriterSink(os.Stdout)
	}

	gateway, err := authbridge.New().
		WithConfig(gwCfg).
		WithCache(store).
		WithIdentityVerifier(verifier).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	defer gateway.Close()

	handlerOpts := []httpapi.Option{httpapi.WithLogger(logger.WithName("http"))}
	if cfg.TrustProxy {
		handlerOpts = append(handlerOpts, httpapi.WithTrustedProxy())
	}
	if gwCfg.Metrics.Enabled {
		handlerOpts = append(handlerOpts, httpapi.WithMetricsHandler(prometheus.NewPrometheusExporter(gateway).Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.addr(),
		Handler:           httpapi.NewHandler(gateway, handlerOpts...),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return serveUntilDone(ctx, srv, opts.shutdown, logger)
}

func serveUntilDone(ctx context.Context, srv *http.Server, shutdown time.Duration, logger logr.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newVerifier picks the identity provider from the environment. Exactly one
// of FIREBASE_PROJECT_ID, OIDC_ISSUER or JWKS_URL must be set.
func newVerifier(ctx context.Context, cfg config) (identity.Verifier, error) {
	set := 0
	for _, v := range []string{cfg.FirebaseProjectID, cfg.OIDCIssuer, cfg.JWKSURL} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of FIREBASE_PROJECT_ID, OIDC_ISSUER or JWKS_URL must be set")
	}

	switch {
	case cfg.FirebaseProjectID != "":
		return oidc.New(ctx, oidc.FirebaseConfig(cfg.FirebaseProjectID))
	case cfg.OIDCIssuer != "":
		return oidc.New(ctx, oidc.Config{Issuer: cfg.OIDCIssuer, ClientID: cfg.OIDCClientID})
	default:
		jc := jwks.DefaultConfig()
		jc.Issuer = cfg.JWKSIssuer
		jc.Audience = cfg.JWKSAudience
		return jwks.New(ctx, jc, cfg.JWKSURL)
	}
}
