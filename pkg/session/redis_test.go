package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, 10*time.Minute), mr
}

func TestPutAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := &State{
		ID:            "sess-1",
		Kind:          KindEnrollment,
		WalletAddress: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		Stage:         StageFaceCaptured,
		Descriptor:    []float64{0.1, 0.2, 0.3},
		Frame:         []byte{0xff, 0xd8},
		WebAuthn: &webauthn.SessionData{
			Challenge: "challenge",
			UserID:    []byte("user"),
		},
	}

	if err := store.Put(ctx, state); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, KindEnrollment, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.WalletAddress != state.WalletAddress {
		t.Errorf("wallet = %q, want %q", got.WalletAddress, state.WalletAddress)
	}
	if got.Stage != StageFaceCaptured {
		t.Errorf("stage = %q, want %q", got.Stage, StageFaceCaptured)
	}
	if len(got.Descriptor) != 3 || got.Descriptor[1] != 0.2 {
		t.Errorf("descriptor not round-tripped: %v", got.Descriptor)
	}
	if got.WebAuthn == nil || got.WebAuthn.Challenge != "challenge" {
		t.Error("webauthn session data not round-tripped")
	}
}

func TestGetUnknownSession(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), KindEnrollment, "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
}

func TestKindsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := &State{ID: "sess-1", Kind: KindEnrollment, Stage: StageWalletConnected}
	if err := store.Put(ctx, state); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, err := store.Get(ctx, KindVerification, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() across kinds error = %v, want ErrSessionNotFound", err)
	}
}

func TestExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	state := &State{ID: "sess-1", Kind: KindVerification, Stage: StageAssertionPending}
	if err := store.Put(ctx, state); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	mr.FastForward(11 * time.Minute)

	if _, err := store.Get(ctx, KindVerification, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrSessionNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := &State{ID: "sess-1", Kind: KindEnrollment, Stage: StageWalletConnected}
	if err := store.Put(ctx, state); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, KindEnrollment, "sess-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, KindEnrollment, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSessionNotFound", err)
	}

	// deleting again is a no-op
	if err := store.Delete(ctx, KindEnrollment, "sess-1"); err != nil {
		t.Errorf("Delete() of absent session error = %v", err)
	}
}
