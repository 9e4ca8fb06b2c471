// Package identitystore persists enrolled identities and their platform
// credentials.
package identitystore

import (
	"context"
	"errors"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jobmesh/identity-middleware/pkg/identity"
)

// ErrIdentityNotFound is returned when an identity lookup finds no
// matching record.
var ErrIdentityNotFound = errors.New("identity not found")

// Store defines the interface for identity persistence. Wallet addresses
// are expected in normalized (lowercase) form.
type Store interface {
	// CreateIdentity stores the identity and its credential atomically.
	CreateIdentity(ctx context.Context, ident *identity.Identity, credential *webauthn.Credential) error

	// GetIdentity returns the identity for the wallet or ErrIdentityNotFound.
	GetIdentity(ctx context.Context, walletAddress string) (*identity.Identity, error)

	// IdentityExists reports whether an identity exists for the wallet.
	IdentityExists(ctx context.Context, walletAddress string) (bool, error)

	// Credentials returns the wallet's registered platform credentials.
	Credentials(ctx context.Context, walletAddress string) ([]webauthn.Credential, error)

	// DeleteIdentity removes the identity and its credentials.
	DeleteIdentity(ctx context.Context, walletAddress string) error
}
