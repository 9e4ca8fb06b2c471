package authenticator

import (
	"errors"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"

	"github.com/jobmesh/identity-middleware/pkg/config"
)

const testWallet = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(config.AuthenticatorConfig{
		RPID:          "localhost",
		RPDisplayName: "Identity Test",
		RPOrigins:     []string{"http://localhost:8080"},
		PromptTimeout: 60 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestNewManagerInvalidConfig(t *testing.T) {
	_, err := NewManager(config.AuthenticatorConfig{}, zap.NewNop())
	if !errors.Is(err, ErrAuthenticatorUnavailable) {
		t.Errorf("NewManager() error = %v, want ErrAuthenticatorUnavailable", err)
	}
}

func TestBeginEnrollment(t *testing.T) {
	m := newTestManager(t)

	creation, session, err := m.BeginEnrollment(testWallet)
	if err != nil {
		t.Fatalf("BeginEnrollment() error = %v", err)
	}
	if creation == nil || session == nil {
		t.Fatal("BeginEnrollment() returned nil options or session")
	}
	if len(creation.Response.Challenge) == 0 {
		t.Error("creation options missing challenge")
	}
	if creation.Response.AuthenticatorSelection.UserVerification != protocol.VerificationRequired {
		t.Errorf("user verification = %v, want required",
			creation.Response.AuthenticatorSelection.UserVerification)
	}
	if creation.Response.AuthenticatorSelection.AuthenticatorAttachment != protocol.Platform {
		t.Errorf("attachment = %v, want platform",
			creation.Response.AuthenticatorSelection.AuthenticatorAttachment)
	}
}

func TestFinishEnrollmentExpiredSession(t *testing.T) {
	m := newTestManager(t)

	session := webauthn.SessionData{
		Challenge: "stale",
		UserID:    []byte(testWallet),
		Expires:   time.Now().Add(-time.Minute),
	}

	_, err := m.FinishEnrollment(testWallet, session, []byte(`{}`))
	if !errors.Is(err, ErrPromptTimeout) {
		t.Errorf("FinishEnrollment() error = %v, want ErrPromptTimeout", err)
	}
}

func TestFinishEnrollmentMalformedResponse(t *testing.T) {
	m := newTestManager(t)

	session := webauthn.SessionData{
		Challenge: "challenge",
		UserID:    []byte(testWallet),
		Expires:   time.Now().Add(time.Minute),
	}

	_, err := m.FinishEnrollment(testWallet, session, []byte(`not-json`))
	if !errors.Is(err, ErrAssertionInvalid) {
		t.Errorf("FinishEnrollment() error = %v, want ErrAssertionInvalid", err)
	}
}

func TestBeginAssertionNoCredentials(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.BeginAssertion(testWallet, nil)
	if !errors.Is(err, ErrAuthenticatorUnavailable) {
		t.Errorf("BeginAssertion() error = %v, want ErrAuthenticatorUnavailable", err)
	}
}

func TestBeginAssertionRestrictsToRegisteredCredentials(t *testing.T) {
	m := newTestManager(t)

	creds := []webauthn.Credential{
		{ID: []byte("credential-1")},
		{ID: []byte("credential-2")},
	}

	assertion, session, err := m.BeginAssertion(testWallet, creds)
	if err != nil {
		t.Fatalf("BeginAssertion() error = %v", err)
	}
	if session == nil {
		t.Fatal("BeginAssertion() returned nil session")
	}
	if got := len(assertion.Response.AllowedCredentials); got != len(creds) {
		t.Fatalf("allowed credentials = %d, want %d", got, len(creds))
	}
	if string(assertion.Response.AllowedCredentials[0].CredentialID) != "credential-1" {
		t.Error("allowed credentials do not match registered credentials")
	}
}

func TestFinishAssertionMalformedResponse(t *testing.T) {
	m := newTestManager(t)

	session := webauthn.SessionData{
		Challenge: "challenge",
		UserID:    []byte(testWallet),
		Expires:   time.Now().Add(time.Minute),
	}
	creds := []webauthn.Credential{{ID: []byte("credential-1")}}

	_, err := m.FinishAssertion(testWallet, creds, session, []byte(`{`))
	if !errors.Is(err, ErrAssertionInvalid) {
		t.Errorf("FinishAssertion() error = %v, want ErrAssertionInvalid", err)
	}
}
