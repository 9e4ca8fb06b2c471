package auth

import (
	"testing"
	"time"

	"github.com/jobmesh/identity-middleware/pkg/config"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(config.AuthConfig{
		JWTSecret:  "test-secret",
		JWTIssuer:  "identity-middleware",
		SessionTTL: time.Hour,
	})

	token, err := issuer.Issue("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	wallet, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if wallet != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("unexpected subject: %s", wallet)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(config.AuthConfig{
		JWTSecret:  "secret-a",
		JWTIssuer:  "identity-middleware",
		SessionTTL: time.Hour,
	})
	other := NewTokenIssuer(config.AuthConfig{
		JWTSecret:  "secret-b",
		JWTIssuer:  "identity-middleware",
		SessionTTL: time.Hour,
	})

	token, err := issuer.Issue("0xABC")
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	if _, err := other.Validate(token); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer(config.AuthConfig{
		JWTSecret:  "test-secret",
		JWTIssuer:  "identity-middleware",
		SessionTTL: -time.Minute,
	})

	token, err := issuer.Issue("0xABC")
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	if _, err := issuer.Validate(token); err == nil {
		t.Fatal("expected validation failure for expired token")
	}
}
