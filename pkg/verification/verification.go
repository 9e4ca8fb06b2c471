// Package verification defines the request and response types for the
// verification flow.
package verification

import "github.com/go-webauthn/webauthn/protocol"

// StartRequest opens a verification session for the claimed wallet. The
// claim itself proves nothing; both factors must pass before a session
// token is issued.
type StartRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,eth_addr"`
}

// StartResponse returns the session identifier and the assertion options
// restricted to the wallet's registered credentials.
type StartResponse struct {
	SessionID string                        `json:"session_id"`
	Stage     string                        `json:"stage"`
	Options   *protocol.CredentialAssertion `json:"options"`
}

// AssertionResponse reports the fingerprint factor result.
type AssertionResponse struct {
	SessionID           string `json:"session_id"`
	FingerprintVerified bool   `json:"fingerprint_verified"`
	Stage               string `json:"stage,omitempty"`
	Reason              string `json:"reason,omitempty"`
}
