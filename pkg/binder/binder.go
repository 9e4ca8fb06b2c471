// Package binder anchors biometric digests to wallet addresses on the
// registry ledger.
package binder

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrBindingConflict indicates the wallet is already bound to a different
// biometric digest. Rebinding requires an explicit re-enrollment, never a
// silent overwrite.
var ErrBindingConflict = errors.New("wallet already bound to a different biometric digest")

// Registry is the ledger surface the binder needs.
type Registry interface {
	RegisterBinding(ctx context.Context, wallet common.Address, biometricHash [32]byte, credentialID []byte) (common.Hash, error)
	CheckBinding(ctx context.Context, wallet common.Address, biometricHash [32]byte) (bool, error)
	BindingOf(ctx context.Context, wallet common.Address) ([32]byte, error)
}

// Binder writes and checks wallet-to-digest bindings.
type Binder struct {
	registry Registry
	logger   *zap.Logger
}

// New creates a binder over the given registry.
func New(registry Registry, logger *zap.Logger) *Binder {
	return &Binder{registry: registry, logger: logger}
}

// Bind anchors the digest to the wallet. Binding the same digest twice is
// idempotent; a wallet bound to a different digest is rejected with
// ErrBindingConflict. The returned transaction hash is empty when no new
// transaction was needed.
func (b *Binder) Bind(ctx context.Context, walletAddress string, digest [32]byte, credentialID []byte) (string, error) {
	wallet := common.HexToAddress(walletAddress)

	existing, err := b.registry.BindingOf(ctx, wallet)
	if err != nil {
		return "", fmt.Errorf("binding lookup for %s: %w", walletAddress, err)
	}

	if existing != ([32]byte{}) {
		if existing == digest {
			b.logger.Debug("Binding already anchored",
				zap.String("wallet", walletAddress))
			return "", nil
		}
		return "", ErrBindingConflict
	}

	txHash, err := b.registry.RegisterBinding(ctx, wallet, digest, credentialID)
	if err != nil {
		return "", fmt.Errorf("register binding for %s: %w", walletAddress, err)
	}
	return txHash.Hex(), nil
}

// Verify reports whether the wallet is bound to the digest. An unbound
// wallet verifies as false without error.
func (b *Binder) Verify(ctx context.Context, walletAddress string, digest [32]byte) (bool, error) {
	wallet := common.HexToAddress(walletAddress)

	matched, err := b.registry.CheckBinding(ctx, wallet, digest)
	if err != nil {
		return false, fmt.Errorf("check binding for %s: %w", walletAddress, err)
	}
	return matched, nil
}
