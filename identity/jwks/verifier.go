// Package jwks verifies federated ID tokens against a raw JWKS endpoint for
// providers that do not publish OIDC discovery metadata.
package jwks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/authbridge/authbridge/identity"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation of federated ID tokens.
type Config struct {
	Issuer      string
	Audience    string
	AllowedAlgs []string
	Leeway      time.Duration
	// RoleClaim names an optional custom claim holding the user's role.
	RoleClaim string
}

// DefaultConfig returns a Config with RS256 and a one-minute leeway.
func DefaultConfig() Config {
	return Config{AllowedAlgs: []string{"RS256"}, Leeway: time.Minute, RoleClaim: "role"}
}

// Verifier implements identity.Verifier with a keyfunc-backed key lookup.
type Verifier struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

var _ identity.Verifier = (*Verifier)(nil)

// New fetches the JWKS at url and keeps it refreshed in the background until
// ctx is cancelled.
func New(ctx context.Context, cfg Config, url string) (*Verifier, error) {
	if url == "" {
		return nil, errors.New("jwks: url is required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return NewWithKeyfunc(cfg, kf.Keyfunc)
}

// NewWithKeyfunc returns a Verifier that resolves signing keys with kf.
func NewWithKeyfunc(cfg Config, kf jwt.Keyfunc) (*Verifier, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("jwks: issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("jwks: audience is required")
	}
	if kf == nil {
		return nil, errors.New("jwks: keyfunc is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	return &Verifier{cfg: cfg, keyfunc: kf}, nil
}

// VerifyCredential implements identity.Verifier.
func (v *Verifier) VerifyCredential(ctx context.Context, raw string) (identity.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, errors.Join(identity.ErrProviderUnavailable, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithLeeway(v.cfg.Leeway),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, v.keyfunc); err != nil {
		return identity.Identity{}, identity.Classify(ctx, err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return identity.Identity{}, fmt.Errorf("%w: missing sub", identity.ErrInvalidCredential)
	}
	id := identity.Identity{UID: sub}
	id.Email, _ = claims["email"].(string)
	id.EmailVerified, _ = claims["email_verified"].(bool)
	id.Role, _ = claims[v.cfg.RoleClaim].(string)
	return id, nil
}
