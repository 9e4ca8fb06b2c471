package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/jobmesh/identity-middleware/pkg/app/errors"
	"github.com/jobmesh/identity-middleware/pkg/authenticator"
	"github.com/jobmesh/identity-middleware/pkg/binder"
	"github.com/jobmesh/identity-middleware/pkg/enrollment"
	"github.com/jobmesh/identity-middleware/pkg/face"
	"github.com/jobmesh/identity-middleware/pkg/identity"
	"github.com/jobmesh/identity-middleware/pkg/session"
	"github.com/jobmesh/identity-middleware/pkg/templatestore"
)

type fakeExtractor struct {
	ready      bool
	descriptor face.Descriptor
	err        error
}

func (f *fakeExtractor) Ready() bool { return f.ready }

func (f *fakeExtractor) ExtractPrimary(ctx context.Context, frame []byte) (face.Descriptor, error) {
	if !f.ready {
		return nil, face.ErrModelsNotReady
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.descriptor, nil
}

type fakeCredentials struct {
	beginErr  error
	finishErr error
	finished  int
}

func (f *fakeCredentials) BeginEnrollment(wallet string) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	if f.beginErr != nil {
		return nil, nil, f.beginErr
	}
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: "challenge", UserID: []byte(wallet)}, nil
}

func (f *fakeCredentials) FinishEnrollment(wallet string, sd webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	f.finished++
	return &webauthn.Credential{ID: []byte("cred-123"), PublicKey: []byte("pk")}, nil
}

type fakeBinder struct {
	err          error
	bound        int
	wallet       string
	digest       [32]byte
	credentialID []byte
}

func (f *fakeBinder) Bind(ctx context.Context, wallet string, digest [32]byte, credentialID []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.bound++
	f.wallet = wallet
	f.digest = digest
	f.credentialID = credentialID
	return "0xtx123", nil
}

type failingTemplates struct{}

func (failingTemplates) Save(ctx context.Context, wallet string, frame []byte) (string, error) {
	return "", errors.New("object storage unreachable")
}

func (failingTemplates) List(ctx context.Context, wallet string) ([]templatestore.Reference, error) {
	return nil, templatestore.ErrNoTemplates
}

func (failingTemplates) Remove(ctx context.Context, wallet string) error { return nil }

type fakeStore struct {
	existing  map[string]bool
	created   []*identity.Identity
	createErr error
}

func (f *fakeStore) IdentityExists(ctx context.Context, wallet string) (bool, error) {
	return f.existing[wallet], nil
}

func (f *fakeStore) CreateIdentity(ctx context.Context, ident *identity.Identity, credential *webauthn.Credential) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, ident)
	return nil
}

type fixture struct {
	svc       Service
	sessions  session.Store
	extractor *fakeExtractor
	creds     *fakeCredentials
	binder    *fakeBinder
	templates templatestore.Store
	store     *fakeStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sessions := session.NewRedisStore(client, 10*time.Minute)

	templates, err := templatestore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}

	f := &fixture{
		sessions:  sessions,
		extractor: &fakeExtractor{ready: true, descriptor: face.Descriptor{0.1, 0.2, 0.3}},
		creds:     &fakeCredentials{},
		binder:    &fakeBinder{},
		templates: templates,
		store:     &fakeStore{existing: map[string]bool{}},
	}
	f.svc = NewService(f.sessions, f.extractor, f.creds, f.binder, f.templates, f.store, zap.NewNop())
	return f
}

func signedStart(t *testing.T) (*enrollment.StartRequest, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	wallet := crypto.PubkeyToAddress(key.PublicKey).Hex()
	message := "Enroll wallet " + wallet

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}

	return &enrollment.StartRequest{
		WalletAddress: wallet,
		Message:       message,
		Signature:     "0x" + hex.EncodeToString(sig),
	}, key
}

func startSession(t *testing.T, f *fixture) string {
	t.Helper()

	req, _ := signedStart(t)
	resp, err := f.svc.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return resp.SessionID
}

func TestStartRejectsForeignSignature(t *testing.T) {
	f := newFixture(t)

	req, _ := signedStart(t)
	other, _ := signedStart(t)
	req.Signature = other.Signature

	_, err := f.svc.Start(context.Background(), req)
	if !apperrors.Is(err, apperrors.CategoryUnauthorized) {
		t.Errorf("Start() error = %v, want unauthorized", err)
	}
}

func TestStartRejectsEnrolledWallet(t *testing.T) {
	f := newFixture(t)

	req, _ := signedStart(t)
	f.store.existing[strings.ToLower(req.WalletAddress)] = true

	_, err := f.svc.Start(context.Background(), req)
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Errorf("Start() error = %v, want conflict", err)
	}
}

func TestCaptureFailureIsSideEffectFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := startSession(t, f)

	f.extractor.err = face.ErrNoFaceDetected
	_, err := f.svc.Capture(ctx, sessionID, []byte("frame"))
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Errorf("Capture() error = %v, want data error", err)
	}

	state, err := f.sessions.Get(ctx, session.KindEnrollment, sessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Stage != session.StageWalletConnected {
		t.Errorf("stage = %q, want %q", state.Stage, session.StageWalletConnected)
	}
	if f.binder.bound != 0 {
		t.Error("binder was called on a failed capture")
	}
	if len(f.store.created) != 0 {
		t.Error("identity was created on a failed capture")
	}
}

func TestCaptureCanBeRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := startSession(t, f)

	if _, err := f.svc.Capture(ctx, sessionID, []byte("first")); err != nil {
		t.Fatalf("first Capture() error = %v", err)
	}
	f.extractor.descriptor = face.Descriptor{0.4, 0.5, 0.6}
	if _, err := f.svc.Capture(ctx, sessionID, []byte("second")); err != nil {
		t.Fatalf("second Capture() error = %v", err)
	}

	state, err := f.sessions.Get(ctx, session.KindEnrollment, sessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Descriptor[0] != 0.4 {
		t.Error("retried capture did not replace the descriptor")
	}
}

func TestCaptureBeforeModelsReady(t *testing.T) {
	f := newFixture(t)
	sessionID := startSession(t, f)

	f.extractor.ready = false
	_, err := f.svc.Capture(context.Background(), sessionID, []byte("frame"))
	if !apperrors.Is(err, apperrors.CategoryDependencyFailure) {
		t.Errorf("Capture() error = %v, want dependency failure", err)
	}
}

func TestBeginCredentialRequiresCapture(t *testing.T) {
	f := newFixture(t)
	sessionID := startSession(t, f)

	_, err := f.svc.BeginCredential(context.Background(), sessionID)
	if !apperrors.Is(err, apperrors.CategoryPreconditionFailed) {
		t.Errorf("BeginCredential() error = %v, want precondition failed", err)
	}
}

func TestFinishCredentialFailureRewindsToWalletConnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := startSession(t, f)

	if _, err := f.svc.Capture(ctx, sessionID, []byte("frame")); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if _, err := f.svc.BeginCredential(ctx, sessionID); err != nil {
		t.Fatalf("BeginCredential() error = %v", err)
	}

	f.creds.finishErr = authenticator.ErrUserCancelled
	_, err := f.svc.FinishCredential(ctx, sessionID, []byte(`{}`))
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Errorf("FinishCredential() error = %v, want data error", err)
	}

	state, err := f.sessions.Get(ctx, session.KindEnrollment, sessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Stage != session.StageWalletConnected {
		t.Errorf("stage = %q, want %q", state.Stage, session.StageWalletConnected)
	}
	if state.Descriptor != nil || state.Frame != nil {
		t.Error("captured biometric data survived an authenticator failure")
	}
	if f.binder.bound != 0 {
		t.Error("binder was called despite authenticator failure")
	}
}

func TestEndToEndEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, _ := signedStart(t)
	resp, err := f.svc.Start(ctx, req)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sessionID := resp.SessionID
	wallet := strings.ToLower(req.WalletAddress)

	if _, err := f.svc.Capture(ctx, sessionID, []byte("frame")); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if _, err := f.svc.BeginCredential(ctx, sessionID); err != nil {
		t.Fatalf("BeginCredential() error = %v", err)
	}

	outcome, err := f.svc.FinishCredential(ctx, sessionID, []byte(`{}`))
	if err != nil {
		t.Fatalf("FinishCredential() error = %v", err)
	}
	if !outcome.Success || outcome.Partial {
		t.Errorf("outcome = %+v, want full success", outcome)
	}

	wantDigest := face.Descriptor{0.1, 0.2, 0.3}.Digest()
	if f.binder.digest != wantDigest {
		t.Error("ledger received a digest that does not match the captured descriptor")
	}
	if f.binder.wallet != wallet {
		t.Errorf("ledger wallet = %q, want %q", f.binder.wallet, wallet)
	}
	if string(f.binder.credentialID) != "cred-123" {
		t.Errorf("ledger credential ID = %q, want %q", f.binder.credentialID, "cred-123")
	}

	refs, err := f.templates.List(ctx, wallet)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(refs) != 1 || string(refs[0].Frame) != "frame" {
		t.Error("captured frame was not persisted to the template store")
	}

	if len(f.store.created) != 1 {
		t.Fatalf("created %d identities, want 1", len(f.store.created))
	}
	ident := f.store.created[0]
	if ident.Status != identity.StatusEnrolled {
		t.Errorf("status = %q, want enrolled", ident.Status)
	}
	if ident.BindingTxHash != "0xtx123" {
		t.Errorf("binding tx hash = %q, want 0xtx123", ident.BindingTxHash)
	}

	if _, err := f.sessions.Get(ctx, session.KindEnrollment, sessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("session survived a completed enrollment")
	}
}

func TestPartialEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc = NewService(f.sessions, f.extractor, f.creds, f.binder, failingTemplates{}, f.store, zap.NewNop())

	sessionID := startSession(t, f)
	if _, err := f.svc.Capture(ctx, sessionID, []byte("frame")); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if _, err := f.svc.BeginCredential(ctx, sessionID); err != nil {
		t.Fatalf("BeginCredential() error = %v", err)
	}

	outcome, err := f.svc.FinishCredential(ctx, sessionID, []byte(`{}`))
	if err != nil {
		t.Fatalf("FinishCredential() error = %v", err)
	}
	if !outcome.Success || !outcome.Partial {
		t.Errorf("outcome = %+v, want partial success", outcome)
	}
	if f.binder.bound != 1 {
		t.Error("binding was not written before template storage failed")
	}
	if len(f.store.created) != 1 {
		t.Error("identity was not recorded for a partial enrollment")
	}
}

func TestBindingConflictIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.binder.err = binder.ErrBindingConflict

	sessionID := startSession(t, f)
	if _, err := f.svc.Capture(ctx, sessionID, []byte("frame")); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if _, err := f.svc.BeginCredential(ctx, sessionID); err != nil {
		t.Fatalf("BeginCredential() error = %v", err)
	}

	_, err := f.svc.FinishCredential(ctx, sessionID, []byte(`{}`))
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Errorf("FinishCredential() error = %v, want conflict", err)
	}
	if len(f.store.created) != 0 {
		t.Error("identity was created despite binding conflict")
	}
	if _, err := f.sessions.Get(ctx, session.KindEnrollment, sessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("session survived a terminal binding failure")
	}
}

func TestAbort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := startSession(t, f)

	if err := f.svc.Abort(ctx, sessionID); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if _, err := f.sessions.Get(ctx, session.KindEnrollment, sessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("session survived an abort")
	}
}
