package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/authbridge/authbridge"
	"github.com/authbridge/authbridge/middleware"
)

type loginRequest struct {
	Credential string `json:"credential"`
	Role       string `json:"role"`
}

type tokenRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	Message       string `json:"message"`
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	AccessToken   string `json:"accessToken"`
	RefreshToken  string `json:"refreshToken,omitempty"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	credential := body.Credential
	if tok, ok := middleware.BearerToken(r.Header.Get("Authorization")); ok {
		credential = tok
	}

	res, err := s.gateway.Login(r.Context(), credential, body.Role)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Message:       "Login successful",
		UID:           res.Identity.UID,
		Email:         res.Identity.Email,
		Role:          res.Identity.Role,
		EmailVerified: res.Identity.EmailVerified,
		AccessToken:   res.AccessToken,
		RefreshToken:  res.RefreshToken,
	})
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	access, refresh, err := tokensFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	res, err := s.gateway.Verify(r.Context(), access, refresh)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if res.Rotated {
		w.Header().Set(middleware.HeaderAccessToken, res.AccessToken)
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Message:       "Token verified",
		UID:           res.Claims.UID,
		Email:         res.Claims.Email,
		Role:          res.Claims.Role,
		EmailVerified: res.Claims.EmailVerified,
		AccessToken:   res.AccessToken,
	})
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	_, refresh, err := tokensFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	res, err := s.gateway.Refresh(r.Context(), refresh)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	w.Header().Set(middleware.HeaderAccessToken, res.AccessToken)
	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Token refreshed",
		"uid":         res.UserID,
		"accessToken": res.AccessToken,
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	access, refresh, err := tokensFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	if err := s.gateway.Logout(r.Context(), access, refresh); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Logout successful"})
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": s.gateway.Status()})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.gateway.Health(r.Context())
	status := http.StatusOK
	if !report.CacheAlive {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// tokensFrom reads the access token from the Authorization header and the
// refresh token from X-Refresh-Token. A JSON body fills whatever the headers
// left empty.
func tokensFrom(r *http.Request) (access, refresh string, err error) {
	access, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	refresh = strings.TrimSpace(r.Header.Get(middleware.HeaderRefreshToken))

	var body tokenRequest
	if err := decodeBody(r, &body); err != nil {
		return "", "", err
	}
	if access == "" {
		access = strings.TrimSpace(body.AccessToken)
	}
	if refresh == "" {
		refresh = strings.TrimSpace(body.RefreshToken)
	}
	return access, refresh, nil
}

// decodeBody decodes an optional JSON body. An empty body is not an error.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.Method == http.MethodGet {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeGatewayError(w http.ResponseWriter, err error) {
	writeError(w, middleware.StatusFor(err), authbridge.ReasonOf(err))
}
