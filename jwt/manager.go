package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authbridge/authbridge/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned for a well-formed token with a valid signature
	// whose expiry has passed. Verify returns the decoded claims alongside it.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned for a bad signature, wrong shape, unexpected
	// issuer/audience, or unknown token kind.
	ErrMalformed = errors.New("malformed token")
)

// SigningMethod selects the session-token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

// Kind tags the payload of a session token.
type Kind string

const (
	// KindAccess marks a short-lived access token.
	KindAccess Kind = "access"
	// KindRefresh marks a long-lived refresh token.
	KindRefresh Kind = "refresh"
)

// Config defines the codec's keys and lifetimes.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Claims is the typed payload of a session token. Unknown fields present in
// a token are dropped on decode.
type Claims struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Role          string `json:"role,omitempty"`
	Kind          Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Identity returns the subject carried by c.
func (c *Claims) Identity() identity.Identity {
	if c == nil {
		return identity.Identity{}
	}
	return identity.Identity{
		UID:           c.UID,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Role:          c.Role,
	}
}

// Remaining reports the token's natural lifetime left at now. It is zero or
// negative once the token has expired.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// Manager signs and verifies session tokens. It holds no mutable state and is
// safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
//
// NewManager fails when a lifetime is not positive or the key material does
// not match the signing method; a missing signing key is a configuration
// error, never a runtime failure mode.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL > cfg.RefreshTTL {
		return nil, errors.New("access TTL must not exceed refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// SignAccess signs an access token for id.
func (j *Manager) SignAccess(id identity.Identity) (string, error) {
	token, _, err := j.IssueAccess(id)
	return token, err
}

// SignRefresh signs a refresh token for id.
func (j *Manager) SignRefresh(id identity.Identity) (string, error) {
	token, _, err := j.IssueRefresh(id)
	return token, err
}

// IssueAccess signs an access token for id and returns it with its claims.
func (j *Manager) IssueAccess(id identity.Identity) (string, *Claims, error) {
	return j.issue(KindAccess, id, j.config.AccessTTL)
}

// IssueRefresh signs a refresh token for id and returns it with its claims.
func (j *Manager) IssueRefresh(id identity.Identity) (string, *Claims, error) {
	return j.issue(KindRefresh, id, j.config.RefreshTTL)
}

func (j *Manager) issue(kind Kind, id identity.Identity, ttl time.Duration) (string, *Claims, error) {
	if strings.TrimSpace(id.UID) == "" {
		return "", nil, errors.New("identity uid is required")
	}

	now := j.config.Now()
	claims := &Claims{
		UID:           id.UID,
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
		Role:          id.Role,
		Kind:          kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UID,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyAccess verifies tokenStr and requires it to be an access token.
func (j *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return j.verifyKind(tokenStr, KindAccess)
}

// VerifyRefresh verifies tokenStr and requires it to be a refresh token.
func (j *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return j.verifyKind(tokenStr, KindRefresh)
}

func (j *Manager) verifyKind(tokenStr string, kind Kind) (*Claims, error) {
	claims, err := j.Verify(tokenStr)
	if claims != nil && claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrMalformed, kind, claims.Kind)
	}
	return claims, err
}

// Verify decodes tokenStr and checks its signature and expiry.
//
// An expired token with a valid signature yields its claims together with
// ErrExpired; every other failure yields nil claims and an error wrapping
// ErrMalformed. Verify is a pure function of its input, the keys, and the clock.
func (j *Manager) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	// Claims are checked below so that expiry can be told apart from every
	// other failure once the signature is known to be valid.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, jwt.ErrTokenInvalidClaims)
	}
	if err := j.checkShape(claims); err != nil {
		return nil, err
	}

	now := j.config.Now()
	if claims.NotBefore != nil && now.Add(j.config.Leeway).Before(claims.NotBefore.Time) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrMalformed)
	}
	if !now.Before(claims.ExpiresAt.Time.Add(j.config.Leeway)) {
		return claims, ErrExpired
	}

	return claims, nil
}

func (j *Manager) checkShape(claims *Claims) error {
	switch claims.Kind {
	case KindAccess, KindRefresh:
	default:
		return fmt.Errorf("%w: unknown token kind %q", ErrMalformed, claims.Kind)
	}
	if claims.UID == "" {
		return fmt.Errorf("%w: missing uid", ErrMalformed)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	if j.config.Issuer != "" && claims.Issuer != j.config.Issuer {
		return fmt.Errorf("%w: unexpected issuer", ErrMalformed)
	}
	if j.config.Audience != "" {
		found := false
		for _, aud := range claims.Audience {
			if aud == j.config.Audience {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unexpected audience", ErrMalformed)
		}
	}
	return nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.getVerifyKey()
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(j.config.PrivateKey)
	default:
		return j.config.PrivateKey, nil
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		if len(j.config.PublicKey) > 0 {
			return parseEdPublicKey(j.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(j.config.PrivateKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	default:
		return j.config.PrivateKey, nil
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(key)
	default:
		return key, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
