// Package identity defines the federated identity boundary consumed by the
// session core.
//
// A [Verifier] turns an opaque bearer credential issued by an external
// identity provider (Firebase, any OIDC issuer, a raw JWKS endpoint) into a
// verified [Identity]. The session core treats verifiers as black boxes with
// unbounded latency; callers bound them with a context deadline.
//
// # What this package must NOT do
//
//   - Import the root package or any session-token code.
//   - Cache verification results.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrInvalidCredential is returned when the provider rejects the credential.
	ErrInvalidCredential = errors.New("invalid federated credential")
	// ErrProviderUnavailable is returned when the provider could not be reached
	// or did not answer before the caller's deadline.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Identity is the verified subject produced by a [Verifier]. It is immutable
// once obtained.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Role          string
}

// Verifier verifies a federated identity credential.
//
// Implementations must return an error wrapping [ErrInvalidCredential] or
// [ErrProviderUnavailable] and must honor ctx cancellation.
type Verifier interface {
	VerifyCredential(ctx context.Context, rawCredential string) (Identity, error)
}

// VerifierFunc adapts a function to [Verifier].
type VerifierFunc func(ctx context.Context, rawCredential string) (Identity, error)

// VerifyCredential calls f(ctx, rawCredential).
func (f VerifierFunc) VerifyCredential(ctx context.Context, rawCredential string) (Identity, error) {
	return f(ctx, rawCredential)
}

// StaticVerifier maps fixed credentials to identities. It is intended for
// local development and tests.
type StaticVerifier struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewStaticVerifier returns an empty StaticVerifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{identities: make(map[string]Identity)}
}

// Put registers credential as a valid credential for id.
func (s *StaticVerifier) Put(credential string, id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[credential] = id
}

// Remove forgets credential.
func (s *StaticVerifier) Remove(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, credential)
}

// VerifyCredential implements [Verifier].
func (s *StaticVerifier) VerifyCredential(ctx context.Context, rawCredential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, errors.Join(ErrProviderUnavailable, err)
	}
	rawCredential = strings.TrimSpace(rawCredential)
	if rawCredential == "" {
		return Identity{}, ErrInvalidCredential
	}

	s.mu.RLock()
	id, ok := s.identities[rawCredential]
	s.mu.RUnlock()
	if !ok {
		return Identity{}, ErrInvalidCredential
	}
	return id, nil
}

// Classify wraps a provider error so that it matches [ErrProviderUnavailable]
// when ctx has been cancelled or has expired, and [ErrInvalidCredential]
// otherwise. Errors that already carry one of the two sentinels are returned
// unchanged.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrProviderUnavailable, err)
	}
	return errors.Join(ErrInvalidCredential, err)
}
