// Package authenticator drives platform-authenticator credential creation
// and assertion over the WebAuthn protocol.
package authenticator

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"

	"github.com/jobmesh/identity-middleware/pkg/config"
)

var (
	// ErrAuthenticatorUnavailable is returned when the relying party is
	// not configured or no compatible authenticator exists.
	ErrAuthenticatorUnavailable = errors.New("platform authenticator unavailable")

	// ErrUserCancelled is returned when the user aborts the
	// authenticator prompt.
	ErrUserCancelled = errors.New("user cancelled authenticator prompt")

	// ErrPromptTimeout is returned when the challenge session expired
	// before the authenticator responded.
	ErrPromptTimeout = errors.New("authenticator prompt timed out")

	// ErrAssertionInvalid is returned when a credential response fails
	// validation against the registered credential.
	ErrAssertionInvalid = errors.New("authenticator assertion invalid")
)

// Manager wraps the WebAuthn relying party. Credential creation and
// assertion both require user verification at the authenticator; the
// prompt is bounded by the configured timeout.
type Manager struct {
	wa      *webauthn.WebAuthn
	timeout time.Duration
	logger  *zap.Logger
}

// NewManager creates a credential manager scoped to the configured
// relying party
func NewManager(cfg config.AuthenticatorConfig, logger *zap.Logger) (*Manager, error) {
	timeout := cfg.PromptTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			UserVerification:        protocol.VerificationRequired,
		},
		Timeouts: webauthn.TimeoutsConfig{
			Registration: webauthn.TimeoutConfig{
				Enforce: true,
				Timeout: timeout,
			},
			Login: webauthn.TimeoutConfig{
				Enforce: true,
				Timeout: timeout,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticatorUnavailable, err)
	}

	return &Manager{
		wa:      wa,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// BeginEnrollment starts credential creation for the wallet. The returned
// options are sent to the client; the session data must be kept until
// FinishEnrollment.
func (m *Manager) BeginEnrollment(walletAddress string) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	holder := NewHolder(walletAddress, nil)

	creation, session, err := m.wa.BeginRegistration(holder)
	if err != nil {
		return nil, nil, fmt.Errorf("begin credential creation: %w", err)
	}

	m.logger.Debug("Credential creation started",
		zap.String("wallet", walletAddress),
		zap.Duration("timeout", m.timeout))

	return creation, session, nil
}

// FinishEnrollment validates the client's attestation response and returns
// the created credential.
func (m *Manager) FinishEnrollment(walletAddress string, session webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	if err := m.checkSession(session); err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	holder := NewHolder(walletAddress, nil)
	credential, err := m.wa.CreateCredential(holder, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	m.logger.Info("Platform credential created",
		zap.String("wallet", walletAddress))

	return credential, nil
}

// BeginAssertion starts proof-of-possession for the wallet, restricted to
// its registered credentials.
func (m *Manager) BeginAssertion(walletAddress string, credentials []webauthn.Credential) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if len(credentials) == 0 {
		return nil, nil, fmt.Errorf("%w: no registered credentials for wallet", ErrAuthenticatorUnavailable)
	}

	holder := NewHolder(walletAddress, credentials)

	assertion, session, err := m.wa.BeginLogin(holder)
	if err != nil {
		return nil, nil, fmt.Errorf("begin assertion: %w", err)
	}

	return assertion, session, nil
}

// FinishAssertion validates the client's assertion response against the
// registered credentials.
func (m *Manager) FinishAssertion(walletAddress string, credentials []webauthn.Credential, session webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	if err := m.checkSession(session); err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	holder := NewHolder(walletAddress, credentials)
	credential, err := m.wa.ValidateLogin(holder, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	return credential, nil
}

// checkSession rejects expired challenge sessions. An expired session
// means the authenticator prompt was never completed within the bounded
// wait.
func (m *Manager) checkSession(session webauthn.SessionData) error {
	if !session.Expires.IsZero() && session.Expires.Before(time.Now()) {
		return ErrPromptTimeout
	}
	return nil
}
