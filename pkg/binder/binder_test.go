package binder

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const testWallet = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

type fakeRegistry struct {
	bindings map[common.Address][32]byte

	registerErr error
	lookupErr   error
	registered  int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{bindings: map[common.Address][32]byte{}}
}

func (f *fakeRegistry) RegisterBinding(ctx context.Context, wallet common.Address, hash [32]byte, credentialID []byte) (common.Hash, error) {
	if f.registerErr != nil {
		return common.Hash{}, f.registerErr
	}
	f.bindings[wallet] = hash
	f.registered++
	return common.HexToHash("0xabc123"), nil
}

func (f *fakeRegistry) CheckBinding(ctx context.Context, wallet common.Address, hash [32]byte) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.bindings[wallet] == hash && hash != [32]byte{}, nil
}

func (f *fakeRegistry) BindingOf(ctx context.Context, wallet common.Address) ([32]byte, error) {
	if f.lookupErr != nil {
		return [32]byte{}, f.lookupErr
	}
	return f.bindings[wallet], nil
}

func TestBindNewWallet(t *testing.T) {
	registry := newFakeRegistry()
	b := New(registry, zap.NewNop())
	digest := sha256.Sum256([]byte("descriptor"))

	txHash, err := b.Bind(context.Background(), testWallet, digest, []byte("cred-1"))
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if txHash == "" {
		t.Error("Bind() returned empty tx hash for a new binding")
	}
	if registry.registered != 1 {
		t.Errorf("registered %d bindings, want 1", registry.registered)
	}
}

func TestBindIsIdempotent(t *testing.T) {
	registry := newFakeRegistry()
	b := New(registry, zap.NewNop())
	digest := sha256.Sum256([]byte("descriptor"))
	ctx := context.Background()

	if _, err := b.Bind(ctx, testWallet, digest, []byte("cred-1")); err != nil {
		t.Fatalf("first Bind() error = %v", err)
	}

	txHash, err := b.Bind(ctx, testWallet, digest, []byte("cred-1"))
	if err != nil {
		t.Fatalf("second Bind() error = %v", err)
	}
	if txHash != "" {
		t.Error("second Bind() submitted a transaction, want no-op")
	}
	if registry.registered != 1 {
		t.Errorf("registered %d bindings, want 1", registry.registered)
	}
}

func TestBindConflict(t *testing.T) {
	registry := newFakeRegistry()
	b := New(registry, zap.NewNop())
	ctx := context.Background()

	if _, err := b.Bind(ctx, testWallet, sha256.Sum256([]byte("original")), []byte("cred-1")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	_, err := b.Bind(ctx, testWallet, sha256.Sum256([]byte("different")), []byte("cred-2"))
	if !errors.Is(err, ErrBindingConflict) {
		t.Errorf("Bind() error = %v, want ErrBindingConflict", err)
	}
	if registry.registered != 1 {
		t.Errorf("registered %d bindings, want 1", registry.registered)
	}
}

func TestBindLedgerFailure(t *testing.T) {
	registry := newFakeRegistry()
	registry.lookupErr = errors.New("rpc timeout")
	b := New(registry, zap.NewNop())

	if _, err := b.Bind(context.Background(), testWallet, sha256.Sum256([]byte("x")), []byte("cred-1")); err == nil {
		t.Error("Bind() succeeded despite ledger failure")
	}
}

func TestVerify(t *testing.T) {
	registry := newFakeRegistry()
	b := New(registry, zap.NewNop())
	digest := sha256.Sum256([]byte("descriptor"))
	ctx := context.Background()

	if _, err := b.Bind(ctx, testWallet, digest, []byte("cred-1")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	matched, err := b.Verify(ctx, testWallet, digest)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !matched {
		t.Error("Verify() = false for bound digest")
	}

	matched, err = b.Verify(ctx, testWallet, sha256.Sum256([]byte("other")))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if matched {
		t.Error("Verify() = true for a digest the wallet is not bound to")
	}
}

func TestVerifyUnboundWallet(t *testing.T) {
	registry := newFakeRegistry()
	b := New(registry, zap.NewNop())

	matched, err := b.Verify(context.Background(), testWallet, sha256.Sum256([]byte("x")))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if matched {
		t.Error("Verify() = true for unbound wallet")
	}
}
