package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"matchfund/internal/core"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	// CallbackPath is where Google redirects after consent.
	CallbackPath = "/auth/google/callback"

	stateCookieName = "matchfund_oauth_state"
)

// GoogleConfig configures the Google login flow.
type GoogleConfig struct {
	ClientID      string
	ClientSecret  string
	ServerURL     string
	AllowedDomain string
}

// GoogleAuthenticator runs the OAuth2 authorization code flow against Google
// and turns the resulting identity into a Principal.
type GoogleAuthenticator struct {
	oauth         *oauth2.Config
	allowedDomain string
	userinfoOpts  []option.ClientOption
}

// NewGoogleAuthenticator builds the flow. Extra options are passed to the
// userinfo client (tests point it at a local server).
func NewGoogleAuthenticator(cfg GoogleConfig, opts ...option.ClientOption) *GoogleAuthenticator {
	return &GoogleAuthenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  strings.TrimRight(cfg.ServerURL, "/") + CallbackPath,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		allowedDomain: strings.ToLower(strings.TrimSpace(cfg.AllowedDomain)),
		userinfoOpts:  opts,
	}
}

// WithEndpoint overrides the OAuth2 endpoint.
func (a *GoogleAuthenticator) WithEndpoint(ep oauth2.Endpoint) *GoogleAuthenticator {
	a.oauth.Endpoint = ep
	return a
}

// Begin sets a fresh state cookie and returns the consent URL to redirect to.
func (a *GoogleAuthenticator) Begin(w http.ResponseWriter, r *http.Request) string {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return a.oauth.AuthCodeURL(state)
}

// Complete validates the callback state, exchanges the code and loads the
// Google profile. It fails with ErrDomainNotAllowed for foreign domains.
func (a *GoogleAuthenticator) Complete(w http.ResponseWriter, r *http.Request) (core.Principal, error) {
	ctx := r.Context()

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		return core.Principal{}, errors.New("oauth state mismatch")
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})

	if e := r.URL.Query().Get("error"); e != "" {
		return core.Principal{}, fmt.Errorf("oauth consent: %s", e)
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return core.Principal{}, errors.New("missing authorization code")
	}

	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return core.Principal{}, fmt.Errorf("exchange code: %w", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(a.oauth.Client(ctx, tok))}, a.userinfoOpts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return core.Principal{}, fmt.Errorf("create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return core.Principal{}, fmt.Errorf("get userinfo: %w", err)
	}

	if err := a.CheckDomain(info.Email); err != nil {
		return core.Principal{}, err
	}

	return core.Principal{
		ID:        info.Id,
		Email:     info.Email,
		Name:      info.Name,
		FirstName: info.GivenName,
	}, nil
}

// CheckDomain rejects emails outside the allowed domain. An empty allowed
// domain accepts every address.
func (a *GoogleAuthenticator) CheckDomain(email string) error {
	return checkDomain(email, a.allowedDomain)
}

func checkDomain(email, allowed string) error {
	if allowed == "" {
		return nil
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || !strings.EqualFold(email[at+1:], allowed) {
		return fmt.Errorf("%s: %w", email, ErrDomainNotAllowed)
	}
	return nil
}
