// Package enrollment defines the request and response types for the
// enrollment flow.
package enrollment

import "github.com/go-webauthn/webauthn/protocol"

// StartRequest opens an enrollment session. The message must be signed by
// the wallet being enrolled; ownership is proven before any biometric
// data is accepted.
type StartRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,eth_addr"`
	Message       string `json:"message" validate:"required"`
	Signature     string `json:"signature" validate:"required"`
}

// StartResponse returns the session identifier used on subsequent steps.
type StartResponse struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
}

// CaptureResponse reports a successful face capture.
type CaptureResponse struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
}

// CredentialCreationResponse carries the authenticator creation options to
// the client.
type CredentialCreationResponse struct {
	SessionID string                       `json:"session_id"`
	Options   *protocol.CredentialCreation `json:"options"`
}
