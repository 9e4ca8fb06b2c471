package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobmesh/identity-middleware/internal/metrics"
	apperrors "github.com/jobmesh/identity-middleware/pkg/app/errors"
	"github.com/jobmesh/identity-middleware/pkg/auth"
	"github.com/jobmesh/identity-middleware/pkg/authenticator"
	"github.com/jobmesh/identity-middleware/pkg/binder"
	"github.com/jobmesh/identity-middleware/pkg/enrollment"
	"github.com/jobmesh/identity-middleware/pkg/face"
	"github.com/jobmesh/identity-middleware/pkg/identity"
	"github.com/jobmesh/identity-middleware/pkg/ledger"
	"github.com/jobmesh/identity-middleware/pkg/session"
	"github.com/jobmesh/identity-middleware/pkg/templatestore"
)

// Extractor is the face-capture surface the enrollment service needs.
type Extractor interface {
	Ready() bool
	ExtractPrimary(ctx context.Context, frame []byte) (face.Descriptor, error)
}

// Credentials drives platform credential creation.
type Credentials interface {
	BeginEnrollment(walletAddress string) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	FinishEnrollment(walletAddress string, session webauthn.SessionData, response []byte) (*webauthn.Credential, error)
}

// Binder anchors biometric digests on the ledger.
type Binder interface {
	Bind(ctx context.Context, walletAddress string, digest [32]byte, credentialID []byte) (string, error)
}

// Store is the narrow identity persistence interface for enrollment.
type Store interface {
	IdentityExists(ctx context.Context, walletAddress string) (bool, error)
	CreateIdentity(ctx context.Context, ident *identity.Identity, credential *webauthn.Credential) error
}

// Service defines the interface for the enrollment business logic
type Service interface {
	Start(ctx context.Context, req *enrollment.StartRequest) (*enrollment.StartResponse, error)
	Capture(ctx context.Context, sessionID string, frame []byte) (*enrollment.CaptureResponse, error)
	BeginCredential(ctx context.Context, sessionID string) (*enrollment.CredentialCreationResponse, error)
	FinishCredential(ctx context.Context, sessionID string, response []byte) (*identity.EnrollmentOutcome, error)
	Abort(ctx context.Context, sessionID string) error
}

type enrollmentService struct {
	sessions    session.Store
	extractor   Extractor
	credentials Credentials
	binder      Binder
	templates   templatestore.Store
	store       Store
	logger      *zap.Logger
}

// NewService creates a new enrollment service
func NewService(
	sessions session.Store,
	extractor Extractor,
	credentials Credentials,
	bnd Binder,
	templates templatestore.Store,
	store Store,
	logger *zap.Logger,
) Service {
	return &enrollmentService{
		sessions:    sessions,
		extractor:   extractor,
		credentials: credentials,
		binder:      bnd,
		templates:   templates,
		store:       store,
		logger:      logger,
	}
}

// Start verifies wallet ownership and opens an enrollment session.
func (s *enrollmentService) Start(ctx context.Context, req *enrollment.StartRequest) (*enrollment.StartResponse, error) {
	if !auth.ValidateEVMAddress(req.WalletAddress) {
		return nil, apperrors.BadRequestError(nil, "invalid wallet address")
	}

	recovered, err := auth.VerifyEIP191Signature(req.Message, req.Signature)
	if err != nil {
		return nil, apperrors.UnAuthorizedError(err, "invalid signature")
	}
	if !strings.EqualFold(recovered.Hex(), req.WalletAddress) {
		return nil, apperrors.UnAuthorizedError(nil, "signature does not match wallet address")
	}

	wallet := strings.ToLower(auth.NormalizeAddress(req.WalletAddress))

	exists, err := s.store.IdentityExists(ctx, wallet)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if exists {
		return nil, apperrors.ConflictError(nil, "wallet already enrolled")
	}

	state := &session.State{
		ID:            uuid.New().String(),
		Kind:          session.KindEnrollment,
		WalletAddress: wallet,
		Stage:         session.StageWalletConnected,
	}
	if err := s.sessions.Put(ctx, state); err != nil {
		return nil, apperrors.GeneralError(err)
	}

	metrics.ActiveSessions.WithLabelValues(string(session.KindEnrollment)).Inc()

	return &enrollment.StartResponse{
		SessionID: state.ID,
		Stage:     string(state.Stage),
	}, nil
}

// Capture extracts the primary face descriptor from the frame and stores
// it on the session. Capture failures leave the session untouched so the
// user can retry.
func (s *enrollmentService) Capture(ctx context.Context, sessionID string, frame []byte) (*enrollment.CaptureResponse, error) {
	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Stage != session.StageWalletConnected && state.Stage != session.StageFaceCaptured {
		return nil, apperrors.PreconditionError(nil, "session is past the capture stage")
	}

	descriptor, err := s.extractor.ExtractPrimary(ctx, frame)
	if err != nil {
		return nil, captureError(err)
	}

	state.Descriptor = descriptor
	state.Frame = frame
	state.Stage = session.StageFaceCaptured
	if err := s.sessions.Put(ctx, state); err != nil {
		return nil, apperrors.GeneralError(err)
	}

	return &enrollment.CaptureResponse{
		SessionID: state.ID,
		Stage:     string(state.Stage),
	}, nil
}

// BeginCredential starts platform credential creation for a session that
// has completed face capture.
func (s *enrollmentService) BeginCredential(ctx context.Context, sessionID string) (*enrollment.CredentialCreationResponse, error) {
	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Stage != session.StageFaceCaptured {
		return nil, apperrors.PreconditionError(nil, "face capture must complete before credential creation")
	}

	creation, waSession, err := s.credentials.BeginEnrollment(state.WalletAddress)
	if err != nil {
		return nil, authenticatorError(err)
	}

	state.WebAuthn = waSession
	state.Stage = session.StageCredentialPending
	if err := s.sessions.Put(ctx, state); err != nil {
		return nil, apperrors.GeneralError(err)
	}

	return &enrollment.CredentialCreationResponse{
		SessionID: state.ID,
		Options:   creation,
	}, nil
}

// FinishCredential validates the attestation response, anchors the
// biometric digest on the ledger and persists the identity. An
// authenticator failure drops the session back to the wallet-connected
// stage; the captured face is discarded and must be redone.
func (s *enrollmentService) FinishCredential(ctx context.Context, sessionID string, response []byte) (*identity.EnrollmentOutcome, error) {
	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Stage != session.StageCredentialPending || state.WebAuthn == nil {
		return nil, apperrors.PreconditionError(nil, "credential creation has not been started")
	}

	credential, err := s.credentials.FinishEnrollment(state.WalletAddress, *state.WebAuthn, response)
	if err != nil {
		s.rewindToWalletConnected(ctx, state)
		return nil, authenticatorError(err)
	}

	descriptor := face.Descriptor(state.Descriptor)
	digest := descriptor.Digest()

	txHash, err := s.binder.Bind(ctx, state.WalletAddress, digest, credential.ID)
	if err != nil {
		// binding failures are terminal for this attempt
		s.deleteSession(ctx, state)
		metrics.EnrollmentsTotal.WithLabelValues("failed").Inc()
		return nil, bindError(err)
	}

	outcome := &identity.EnrollmentOutcome{Success: true}

	if _, err := s.templates.Save(ctx, state.WalletAddress, state.Frame); err != nil {
		// the binding is already on the ledger; report the missing
		// template instead of rolling back
		s.logger.Warn("Template storage failed after binding",
			zap.String("wallet", state.WalletAddress),
			zap.Error(err))
		outcome.Partial = true
		outcome.Reason = "face template could not be stored; re-capture required"
	}

	credentialID := base64.RawURLEncoding.EncodeToString(credential.ID)
	ident := identity.New(state.WalletAddress, descriptor.DigestHex(), credentialID, txHash)
	if err := s.store.CreateIdentity(ctx, ident, credential); err != nil {
		s.deleteSession(ctx, state)
		metrics.EnrollmentsTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.GeneralError(err)
	}

	s.deleteSession(ctx, state)
	if outcome.Partial {
		metrics.EnrollmentsTotal.WithLabelValues("partial").Inc()
	} else {
		metrics.EnrollmentsTotal.WithLabelValues("success").Inc()
	}

	s.logger.Info("Enrollment complete",
		zap.String("wallet", state.WalletAddress),
		zap.String("tx_hash", txHash),
		zap.Bool("partial", outcome.Partial))

	return outcome, nil
}

// Abort discards the enrollment session.
func (s *enrollmentService) Abort(ctx context.Context, sessionID string) error {
	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.deleteSession(ctx, state)
	metrics.EnrollmentsTotal.WithLabelValues("aborted").Inc()
	return nil
}

func (s *enrollmentService) getSession(ctx context.Context, sessionID string) (*session.State, error) {
	state, err := s.sessions.Get(ctx, session.KindEnrollment, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "enrollment session not found")
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return state, nil
}

func (s *enrollmentService) rewindToWalletConnected(ctx context.Context, state *session.State) {
	state.Stage = session.StageWalletConnected
	state.Descriptor = nil
	state.Frame = nil
	state.WebAuthn = nil
	if err := s.sessions.Put(ctx, state); err != nil {
		s.logger.Warn("Failed to rewind enrollment session",
			zap.String("session_id", state.ID),
			zap.Error(err))
	}
}

func (s *enrollmentService) deleteSession(ctx context.Context, state *session.State) {
	if err := s.sessions.Delete(ctx, state.Kind, state.ID); err != nil {
		s.logger.Warn("Failed to delete session",
			zap.String("session_id", state.ID),
			zap.Error(err))
		return
	}
	metrics.ActiveSessions.WithLabelValues(string(state.Kind)).Dec()
}

func captureError(err error) error {
	switch {
	case errors.Is(err, face.ErrModelsNotReady):
		return apperrors.DependencyError(err, "face recognition engine is not ready")
	case errors.Is(err, face.ErrNoFaceDetected):
		return apperrors.BadRequestError(err, "no face detected; retry the capture")
	default:
		return apperrors.DependencyError(err, "face capture failed")
	}
}

func authenticatorError(err error) error {
	switch {
	case errors.Is(err, authenticator.ErrPromptTimeout):
		return apperrors.TimeoutError(err, "authenticator prompt timed out")
	case errors.Is(err, authenticator.ErrUserCancelled):
		return apperrors.BadRequestError(err, "authenticator prompt was cancelled")
	case errors.Is(err, authenticator.ErrAuthenticatorUnavailable):
		return apperrors.DependencyError(err, "no compatible platform authenticator")
	case errors.Is(err, authenticator.ErrAssertionInvalid):
		return apperrors.UnAuthorizedError(err, "authenticator response rejected")
	default:
		return apperrors.GeneralError(err)
	}
}

func bindError(err error) error {
	switch {
	case errors.Is(err, binder.ErrBindingConflict):
		return apperrors.ConflictError(err, "wallet already bound to a different biometric digest")
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return apperrors.DependencyError(err, "credential ledger unavailable")
	default:
		return apperrors.GeneralError(err)
	}
}
