// Package identity holds the domain model for enrolled identities.
package identity

import "time"

// Status is the enrollment status of an identity.
type Status string

const (
	// StatusUnenrolled means no credential binding exists for the wallet.
	StatusUnenrolled Status = "unenrolled"
	// StatusEnrolled means a credential binding exists on the ledger.
	StatusEnrolled Status = "enrolled"
)

// Identity represents the domain model for an enrolled subject. Identities
// are created implicitly on first successful enrollment and are keyed by
// wallet address.
type Identity struct {
	WalletAddress string
	Status        Status
	BiometricHash string
	CredentialID  string
	BindingTxHash string
	EnrolledAt    *time.Time
}

// New creates an enrolled Identity from the given parameters.
func New(walletAddress, biometricHash, credentialID, bindingTxHash string) *Identity {
	now := time.Now()
	return &Identity{
		WalletAddress: walletAddress,
		Status:        StatusEnrolled,
		BiometricHash: biometricHash,
		CredentialID:  credentialID,
		BindingTxHash: bindingTxHash,
		EnrolledAt:    &now,
	}
}

// CredentialBinding is the durable record anchoring a wallet to its
// biometric hash and platform credential. The biometric hash lives on the
// ledger; the credential identifier is held by the identity store.
type CredentialBinding struct {
	WalletAddress        string
	BiometricHash        string
	PlatformCredentialID string
}

// VerificationResult is the transient outcome of a verification attempt.
// It is computed fresh per attempt and never persisted.
type VerificationResult struct {
	FingerprintVerified bool `json:"fingerprint_verified"`
	FaceVerified        bool `json:"face_verified"`
	Combined            bool `json:"combined"`
}

// Combine sets Combined from the two factors and returns the result.
// Combined is true only when both factors passed.
func (r VerificationResult) Combine() VerificationResult {
	r.Combined = r.FingerprintVerified && r.FaceVerified
	return r
}

// EnrollmentOutcome is returned to the caller at the end of an enrollment
// attempt. Partial signals a binding that exists on the ledger without a
// retrievable face template; the caller should prompt re-capture of the
// template only.
type EnrollmentOutcome struct {
	Success bool   `json:"success"`
	Partial bool   `json:"partial,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// VerificationOutcome is returned to the caller at the end of a
// verification attempt. SessionToken is set only when Combined is true.
type VerificationOutcome struct {
	VerificationResult
	Reason       string `json:"reason,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}
