package auth

import (
	"errors"
	"testing"
	"time"

	"matchfund/internal/core"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	p := core.Principal{ID: "g-1", Email: "alice@example.com", Name: "Alice Smith", FirstName: "Alice"}

	token, err := m.Generate(p)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Principal() != p {
		t.Errorf("Principal() = %+v, want %+v", claims.Principal(), p)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("token lifetime = %v, want 1h", got)
	}
}

func TestTokenManager_DefaultTTL(t *testing.T) {
	if m := NewTokenManager("secret", 0); m.ttl != DefaultTokenTTL {
		t.Errorf("ttl = %v, want %v", m.ttl, DefaultTokenTTL)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	token, _ := m.Generate(core.Principal{ID: "1", Email: "a@example.com"})

	expired := NewTokenManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Generate(core.Principal{ID: "1", Email: "a@example.com"})

	tests := []struct {
		name  string
		token string
		mgr   *TokenManager
	}{
		{"wrong secret", token, NewTokenManager("other", time.Hour)},
		{"expired", old, m},
		{"garbage", "not-a-token", m},
		{"empty", "", m},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.mgr.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestCheckDomain(t *testing.T) {
	tests := []struct {
		email   string
		allowed string
		wantErr bool
	}{
		{"alice@example.com", "example.com", false},
		{"alice@EXAMPLE.com", "example.com", false},
		{"alice@other.com", "example.com", true},
		{"alice@sub.example.com", "example.com", true},
		{"no-at-sign", "example.com", true},
		{"anyone@anywhere.org", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := checkDomain(tt.email, tt.allowed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkDomain(%q, %q) error = %v, wantErr %v", tt.email, tt.allowed, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrDomainNotAllowed) {
				t.Errorf("expected ErrDomainNotAllowed, got %v", err)
			}
		})
	}
}
