// Package session holds short-lived enrollment and verification state
// between the HTTP round-trips of a challenge flow.
package session

import (
	"context"
	"errors"

	"github.com/go-webauthn/webauthn/webauthn"
)

// ErrSessionNotFound indicates the session never existed or its TTL elapsed.
var ErrSessionNotFound = errors.New("session not found")

// Kind distinguishes enrollment sessions from verification sessions.
type Kind string

const (
	KindEnrollment   Kind = "enrollment"
	KindVerification Kind = "verification"
)

// Stage tracks how far a session has progressed. Operations validate the
// stage before acting so steps cannot be skipped or replayed.
type Stage string

const (
	StageWalletConnected    Stage = "wallet_connected"
	StageFaceCaptured       Stage = "face_captured"
	StageCredentialPending  Stage = "credential_pending"
	StageAssertionPending   Stage = "assertion_pending"
	StageFingerprintChecked Stage = "fingerprint_checked"
)

// State is the serialized session record. Face frames and descriptors are
// held here only for the lifetime of the flow.
type State struct {
	ID                  string                `json:"id"`
	Kind                Kind                  `json:"kind"`
	WalletAddress       string                `json:"wallet_address"`
	Stage               Stage                 `json:"stage"`
	Descriptor          []float64             `json:"descriptor,omitempty"`
	Frame               []byte                `json:"frame,omitempty"`
	WebAuthn            *webauthn.SessionData `json:"webauthn,omitempty"`
	FingerprintVerified bool                  `json:"fingerprint_verified"`
}

// Store persists session state with a bounded lifetime.
type Store interface {
	// Put writes the state, resetting its TTL.
	Put(ctx context.Context, state *State) error

	// Get returns the state or ErrSessionNotFound.
	Get(ctx context.Context, kind Kind, id string) (*State, error)

	// Delete removes the state. Deleting an absent session is not an error.
	Delete(ctx context.Context, kind Kind, id string) error
}
