package identitystore

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jobmesh/identity-middleware/pkg/identity"
	"github.com/jobmesh/identity-middleware/pkg/pgutil"
	mghelper "github.com/jobmesh/identity-middleware/pkg/pgutil/migrations"
)

const (
	testWallet  = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	otherWallet = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

func setupStore(t *testing.T) (context.Context, *pgStore) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &IdentityDao{}, &CredentialDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return ctx, NewStore(db)
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}
	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed identitystore tests")
}

func newTestCredential(id string) *webauthn.Credential {
	return &webauthn.Credential{
		ID:        []byte(id),
		PublicKey: []byte("public-key"),
		Authenticator: webauthn.Authenticator{
			AAGUID:    []byte("aaguid-0000-0000"),
			SignCount: 7,
		},
	}
}

func TestCreateAndGetIdentity(t *testing.T) {
	ctx, store := setupStore(t)

	ident := identity.New(testWallet, "0xdeadbeef", "cred-1", "0xabc123")
	if err := store.CreateIdentity(ctx, ident, newTestCredential("cred-1")); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	got, err := store.GetIdentity(ctx, testWallet)
	if err != nil {
		t.Fatalf("GetIdentity() error = %v", err)
	}
	if got.Status != identity.StatusEnrolled {
		t.Errorf("status = %q, want %q", got.Status, identity.StatusEnrolled)
	}
	if got.BiometricHash != "0xdeadbeef" {
		t.Errorf("biometric hash = %q, want %q", got.BiometricHash, "0xdeadbeef")
	}
	if got.BindingTxHash != "0xabc123" {
		t.Errorf("binding tx hash = %q, want %q", got.BindingTxHash, "0xabc123")
	}
	if got.EnrolledAt == nil {
		t.Error("enrolled_at not persisted")
	}
}

func TestGetIdentityNotFound(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.GetIdentity(ctx, testWallet)
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("GetIdentity() error = %v, want ErrIdentityNotFound", err)
	}
}

func TestIdentityExists(t *testing.T) {
	ctx, store := setupStore(t)

	exists, err := store.IdentityExists(ctx, testWallet)
	if err != nil {
		t.Fatalf("IdentityExists() error = %v", err)
	}
	if exists {
		t.Error("IdentityExists() = true before enrollment")
	}

	ident := identity.New(testWallet, "0xdeadbeef", "cred-1", "0xabc123")
	if err := store.CreateIdentity(ctx, ident, newTestCredential("cred-1")); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	exists, err = store.IdentityExists(ctx, testWallet)
	if err != nil {
		t.Fatalf("IdentityExists() error = %v", err)
	}
	if !exists {
		t.Error("IdentityExists() = false after enrollment")
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	ctx, store := setupStore(t)

	ident := identity.New(testWallet, "0xdeadbeef", "cred-1", "0xabc123")
	credential := newTestCredential("cred-1")
	if err := store.CreateIdentity(ctx, ident, credential); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	credentials, err := store.Credentials(ctx, testWallet)
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if len(credentials) != 1 {
		t.Fatalf("Credentials() returned %d records, want 1", len(credentials))
	}
	if string(credentials[0].ID) != "cred-1" {
		t.Errorf("credential ID = %q, want %q", credentials[0].ID, "cred-1")
	}
	if credentials[0].Authenticator.SignCount != 7 {
		t.Errorf("sign count = %d, want 7", credentials[0].Authenticator.SignCount)
	}

	// other wallets see no credentials
	credentials, err = store.Credentials(ctx, otherWallet)
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if len(credentials) != 0 {
		t.Errorf("Credentials() for other wallet returned %d records, want 0", len(credentials))
	}
}

func TestDuplicateWalletRejected(t *testing.T) {
	ctx, store := setupStore(t)

	first := identity.New(testWallet, "0xdeadbeef", "cred-1", "0xabc123")
	if err := store.CreateIdentity(ctx, first, newTestCredential("cred-1")); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	second := identity.New(testWallet, "0xfeedface", "cred-2", "0xdef456")
	if err := store.CreateIdentity(ctx, second, newTestCredential("cred-2")); err == nil {
		t.Error("CreateIdentity() allowed a second identity for the same wallet")
	}
}

func TestDeleteIdentity(t *testing.T) {
	ctx, store := setupStore(t)

	ident := identity.New(testWallet, "0xdeadbeef", "cred-1", "0xabc123")
	if err := store.CreateIdentity(ctx, ident, newTestCredential("cred-1")); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	if err := store.DeleteIdentity(ctx, testWallet); err != nil {
		t.Fatalf("DeleteIdentity() error = %v", err)
	}

	if _, err := store.GetIdentity(ctx, testWallet); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("GetIdentity() after delete error = %v, want ErrIdentityNotFound", err)
	}

	credentials, err := store.Credentials(ctx, testWallet)
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if len(credentials) != 0 {
		t.Errorf("credentials not deleted with identity: %d remaining", len(credentials))
	}
}
