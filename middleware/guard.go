package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/authbridge/authbridge"
)

const (
	// HeaderRefreshToken carries the refresh token on requests.
	HeaderRefreshToken = "X-Refresh-Token"
	// HeaderAccessToken carries a renewed access token on responses.
	HeaderAccessToken = "X-Access-Token"
)

// Verifier is the subset of *authbridge.Gateway used by Guard.
type Verifier interface {
	Verify(ctx context.Context, accessToken, refreshToken string) (*authbridge.VerifyResult, error)
}

type verifyResultContextKey struct{}

// VerifyResultFromContext returns the result stored by Guard.
func VerifyResultFromContext(ctx context.Context) (*authbridge.VerifyResult, bool) {
	res, ok := ctx.Value(verifyResultContextKey{}).(*authbridge.VerifyResult)
	return res, ok && res != nil
}

// ClaimsFromContext returns the verified claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*authbridge.Claims, bool) {
	res, ok := VerifyResultFromContext(ctx)
	if !ok || res.Claims == nil {
		return nil, false
	}
	return res.Claims, true
}

// Guard rejects requests that do not carry a valid access token. Rejections
// are answered with the reason code only.
func Guard(gateway Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gateway == nil {
				http.Error(w, authbridge.ReasonInternal, http.StatusServiceUnavailable)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, authbridge.ReasonMissingToken, http.StatusUnauthorized)
				return
			}

			res, err := gateway.Verify(r.Context(), token, strings.TrimSpace(r.Header.Get(HeaderRefreshToken)))
			if err != nil {
				http.Error(w, authbridge.ReasonOf(err), StatusFor(err))
				return
			}
			if res.Rotated {
				w.Header().Set(HeaderAccessToken, res.AccessToken)
			}

			ctx := context.WithValue(r.Context(), verifyResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StatusFor maps a Gateway error to its HTTP status.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch authbridge.OutcomeOf(err) {
	case authbridge.OutcomeUnauthorized:
		return http.StatusUnauthorized
	case authbridge.OutcomeBadRequest:
		return http.StatusBadRequest
	case authbridge.OutcomeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
