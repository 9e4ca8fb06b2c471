// Package templatestore persists reference face frames captured during
// enrollment for later comparison during verification.
package templatestore

import (
	"context"
	"errors"
)

// ErrNoTemplates indicates the wallet has no stored reference frames.
var ErrNoTemplates = errors.New("no reference templates for wallet")

// Reference is a stored enrollment frame.
type Reference struct {
	ID    string
	Frame []byte
}

// Store persists reference frames keyed by wallet address.
type Store interface {
	// Save stores a reference frame and returns its identifier.
	Save(ctx context.Context, walletAddress string, frame []byte) (string, error)

	// List returns all reference frames for the wallet, or ErrNoTemplates.
	List(ctx context.Context, walletAddress string) ([]Reference, error)

	// Remove deletes all reference frames for the wallet.
	Remove(ctx context.Context, walletAddress string) error
}
