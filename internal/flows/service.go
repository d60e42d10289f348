package flows

import (
	"context"
	"time"

	"github.com/authbridge/authbridge/identity"
)

// Service is the centralized flow runner built once by the root gateway.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.VerifyAccess != nil && s.deps.Verify.Cache != nil
}

func (s Service) Verify(ctx context.Context, accessToken, refreshToken string) VerifyResult {
	return RunVerify(ctx, accessToken, refreshToken, s.deps.Verify)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Authenticate(ctx context.Context, credential, client string) AuthenticateResult {
	return RunAuthenticate(ctx, credential, client, s.deps.Authenticate)
}

func (s Service) Login(ctx context.Context, id identity.Identity, role string) LoginResult {
	return RunLogin(ctx, id, role, s.deps.Login)
}

func (s Service) Logout(ctx context.Context, accessToken, refreshToken string) LogoutResult {
	return RunLogout(ctx, accessToken, refreshToken, s.deps.Logout)
}

func (s Service) Health(ctx context.Context) (bool, time.Duration) {
	return RunHealth(ctx, s.deps.Health)
}
