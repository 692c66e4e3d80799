package http

import (
	"encoding/json"
	"net/http"
	"net/url"

	"matchfund/internal/auth"
	"matchfund/internal/core"
	"matchfund/internal/log"
)

type authUserResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *core.Principal `json:"user,omitempty"`
}

// handleGoogleLogin redirects to the Google consent screen.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.google == nil || s.tokens == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Google login is not configured").Write(w)
		return
	}
	http.Redirect(w, r, s.google.Begin(w, r), http.StatusFound)
}

// handleGoogleCallback finishes the OAuth flow and hands the session token to
// the web client through the redirect URL.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

	if s.google == nil || s.tokens == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Google login is not configured").Write(w)
		return
	}

	principal, err := s.google.Complete(w, r)
	if err != nil {
		logger.WarnContext(ctx, "Google login failed", log.FieldOperation, log.OpLogin, log.FieldError, err.Error())
		http.Redirect(w, r, s.clientRedirect(url.Values{"error": {"auth_failed"}}), http.StatusFound)
		return
	}

	token, err := s.tokens.Generate(principal)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to sign session token", log.FieldError, err.Error())
		http.Redirect(w, r, s.clientRedirect(url.Values{"error": {"auth_failed"}}), http.StatusFound)
		return
	}
	user, err := json.Marshal(principal)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to encode user", log.FieldError, err.Error())
		http.Redirect(w, r, s.clientRedirect(url.Values{"error": {"auth_failed"}}), http.StatusFound)
		return
	}

	auth.SetSessionCookie(w, r, token, s.tokens.TTL())
	logger.InfoContext(ctx, "User logged in", log.FieldOperation, log.OpLogin, log.FieldUserEmail, principal.Email)

	http.Redirect(w, r, s.clientRedirect(url.Values{
		"token": {token},
		"user":  {string(user)},
	}), http.StatusFound)
}

// handleVerify reports whether the presented token is valid.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		NewJSONResponse().Status(http.StatusUnauthorized).Body(map[string]any{
			"valid": false,
			"error": "Invalid or expired token",
		}).Write(w)
		return
	}
	p := claims.Principal()
	NewJSONResponse().Body(map[string]any{"valid": true, "user": p}).Write(w)
}

// handleUser answers {authenticated:false} rather than 401 for anonymous
// callers.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		NewJSONResponse().Body(authUserResponse{}).Write(w)
		return
	}
	p := claims.Principal()
	NewJSONResponse().Body(authUserResponse{Authenticated: true, User: &p}).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, s.clientRedirect(url.Values{"logout": {"success"}}), http.StatusFound)
}

func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	if s.gate != nil {
		return s.gate.Authenticate(r)
	}
	if s.tokens == nil {
		return nil, auth.ErrMissingToken
	}
	token := auth.TokenFromRequest(r)
	if token == "" {
		return nil, auth.ErrMissingToken
	}
	return s.tokens.Validate(token)
}

// clientRedirect builds CLIENT_URL?query, falling back to the site root.
func (s *Server) clientRedirect(query url.Values) string {
	base := s.clientURL
	if base == "" {
		base = "/"
	}
	return base + "?" + query.Encode()
}
