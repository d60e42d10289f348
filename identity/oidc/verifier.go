// Package oidc verifies federated ID tokens issued by an OpenID Connect
// provider, including Firebase Authentication.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/authbridge/authbridge/identity"
	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// FirebaseIssuerPrefix is the issuer of Firebase ID tokens; the project ID is
// appended.
const FirebaseIssuerPrefix = "https://securetoken.google.com/"

// Config selects the provider and the audience ID tokens must carry.
type Config struct {
	// Issuer is the OIDC issuer URL used for discovery.
	Issuer string
	// ClientID is the expected audience.
	ClientID string
	// RoleClaim names an optional custom claim holding the user's role.
	// Defaults to "role".
	RoleClaim string
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
	// HTTPClient fetches discovery metadata and signing keys. Defaults to a
	// pooled client that ignores proxy environment settings.
	HTTPClient *http.Client
}

// FirebaseConfig returns a Config for a Firebase project.
func FirebaseConfig(projectID string) Config {
	return Config{
		Issuer:   FirebaseIssuerPrefix + projectID,
		ClientID: projectID,
	}
}

// Verifier implements identity.Verifier on a go-oidc ID token verifier.
type Verifier struct {
	verifier  *gooidc.IDTokenVerifier
	roleClaim string
}

var _ identity.Verifier = (*Verifier)(nil)

// New discovers the provider at cfg.Issuer and returns a Verifier backed by
// its remote key set.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", cfg.Issuer, err)
	}
	return &Verifier{
		verifier:  provider.Verifier(oidcConfig(cfg)),
		roleClaim: roleClaim(cfg),
	}, nil
}

// NewWithKeySet returns a Verifier that checks signatures against keySet
// without discovery.
func NewWithKeySet(cfg Config, keySet gooidc.KeySet) (*Verifier, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if keySet == nil {
		return nil, errors.New("oidc: key set is required")
	}
	return &Verifier{
		verifier:  gooidc.NewVerifier(cfg.Issuer, keySet, oidcConfig(cfg)),
		roleClaim: roleClaim(cfg),
	}, nil
}

// VerifyCredential verifies rawIDToken and maps its claims to an Identity.
// The subject is taken from sub.
func (v *Verifier) VerifyCredential(ctx context.Context, rawIDToken string) (identity.Identity, error) {
	rawIDToken = strings.TrimSpace(rawIDToken)
	if rawIDToken == "" {
		return identity.Identity{}, identity.ErrInvalidCredential
	}

	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.Identity{}, classify(ctx, err)
	}

	var claims map[string]any
	if err := token.Claims(&claims); err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", identity.ErrInvalidCredential, err)
	}

	id := identity.Identity{UID: token.Subject}
	id.Email, _ = claims["email"].(string)
	id.EmailVerified, _ = claims["email_verified"].(bool)
	id.Role, _ = claims[v.roleClaim].(string)
	if id.UID == "" {
		return identity.Identity{}, fmt.Errorf("%w: missing subject", identity.ErrInvalidCredential)
	}
	return id, nil
}

// classify separates key-fetch failures, which mean the provider could not be
// reached, from token rejections. Transport errors are wrapped by go-oidc;
// a non-200 key response is only reported as text.
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || keyFetchFailed(err.Error()) {
		return fmt.Errorf("%w: %w", identity.ErrProviderUnavailable, err)
	}
	return identity.Classify(ctx, err)
}

func keyFetchFailed(msg string) bool {
	return strings.Contains(msg, "get keys failed") || strings.Contains(msg, "fetching keys")
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return errors.New("oidc: issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return errors.New("oidc: client id is required")
	}
	return nil
}

func oidcConfig(cfg Config) *gooidc.Config {
	return &gooidc.Config{ClientID: cfg.ClientID, Now: cfg.Now}
}

func roleClaim(cfg Config) string {
	if cfg.RoleClaim == "" {
		return "role"
	}
	return cfg.RoleClaim
}
