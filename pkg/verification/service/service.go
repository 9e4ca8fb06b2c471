package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jobmesh/identity-middleware/internal/metrics"
	apperrors "github.com/jobmesh/identity-middleware/pkg/app/errors"
	"github.com/jobmesh/identity-middleware/pkg/auth"
	"github.com/jobmesh/identity-middleware/pkg/authenticator"
	"github.com/jobmesh/identity-middleware/pkg/face"
	"github.com/jobmesh/identity-middleware/pkg/identity"
	"github.com/jobmesh/identity-middleware/pkg/identitystore"
	"github.com/jobmesh/identity-middleware/pkg/ledger"
	"github.com/jobmesh/identity-middleware/pkg/session"
	"github.com/jobmesh/identity-middleware/pkg/templatestore"
	"github.com/jobmesh/identity-middleware/pkg/verification"
)

// Extractor is the face-capture surface the verification service needs.
type Extractor interface {
	Ready() bool
	ExtractPrimary(ctx context.Context, frame []byte) (face.Descriptor, error)
}

// Credentials drives platform credential assertion.
type Credentials interface {
	BeginAssertion(walletAddress string, credentials []webauthn.Credential) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	FinishAssertion(walletAddress string, credentials []webauthn.Credential, session webauthn.SessionData, response []byte) (*webauthn.Credential, error)
}

// Binder checks wallet-to-digest bindings on the ledger.
type Binder interface {
	Verify(ctx context.Context, walletAddress string, digest [32]byte) (bool, error)
}

// Store is the narrow identity persistence interface for verification.
type Store interface {
	GetIdentity(ctx context.Context, walletAddress string) (*identity.Identity, error)
	Credentials(ctx context.Context, walletAddress string) ([]webauthn.Credential, error)
}

// TokenIssuer mints session tokens for fully verified wallets.
type TokenIssuer interface {
	Issue(walletAddress string) (string, error)
}

// Service defines the interface for the verification business logic
type Service interface {
	Start(ctx context.Context, req *verification.StartRequest) (*verification.StartResponse, error)
	Assertion(ctx context.Context, sessionID string, response []byte) (*verification.AssertionResponse, error)
	Face(ctx context.Context, sessionID string, frame []byte) (*identity.VerificationOutcome, error)
}

type verificationService struct {
	sessions    session.Store
	extractor   Extractor
	credentials Credentials
	binder      Binder
	templates   templatestore.Store
	store       Store
	tokens      TokenIssuer
	threshold   float64
	logger      *zap.Logger
}

// NewService creates a new verification service
func NewService(
	sessions session.Store,
	extractor Extractor,
	credentials Credentials,
	bnd Binder,
	templates templatestore.Store,
	store Store,
	tokens TokenIssuer,
	threshold float64,
	logger *zap.Logger,
) Service {
	return &verificationService{
		sessions:    sessions,
		extractor:   extractor,
		credentials: credentials,
		binder:      bnd,
		templates:   templates,
		store:       store,
		tokens:      tokens,
		threshold:   threshold,
		logger:      logger,
	}
}

// Start opens a verification session for an enrolled wallet and returns
// assertion options restricted to its registered credentials.
func (s *verificationService) Start(ctx context.Context, req *verification.StartRequest) (*verification.StartResponse, error) {
	if !auth.ValidateEVMAddress(req.WalletAddress) {
		return nil, apperrors.BadRequestError(nil, "invalid wallet address")
	}
	wallet := strings.ToLower(auth.NormalizeAddress(req.WalletAddress))

	if _, err := s.store.GetIdentity(ctx, wallet); err != nil {
		if errors.Is(err, identitystore.ErrIdentityNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "wallet is not enrolled")
		}
		return nil, apperrors.GeneralError(err)
	}

	credentials, err := s.store.Credentials(ctx, wallet)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	assertion, waSession, err := s.credentials.BeginAssertion(wallet, credentials)
	if err != nil {
		return nil, authenticatorError(err)
	}

	state := &session.State{
		ID:            uuid.New().String(),
		Kind:          session.KindVerification,
		WalletAddress: wallet,
		Stage:         session.StageAssertionPending,
		WebAuthn:      waSession,
	}
	if err := s.sessions.Put(ctx, state); err != nil {
		return nil, apperrors.GeneralError(err)
	}

	metrics.ActiveSessions.WithLabelValues(string(session.KindVerification)).Inc()

	return &verification.StartResponse{
		SessionID: state.ID,
		Stage:     string(state.Stage),
		Options:   assertion,
	}, nil
}

// Assertion checks the fingerprint factor: the authenticator response must
// validate against a registered credential and the wallet's biometric
// digest must still be anchored on the ledger. A rejected assertion ends
// the attempt; the face factor is never consulted.
func (s *verificationService) Assertion(ctx context.Context, sessionID string, response []byte) (*verification.AssertionResponse, error) {
	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Stage != session.StageAssertionPending || state.WebAuthn == nil {
		return nil, apperrors.PreconditionError(nil, "session is not awaiting an assertion")
	}

	ident, err := s.store.GetIdentity(ctx, state.WalletAddress)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	credentials, err := s.store.Credentials(ctx, state.WalletAddress)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	if _, err := s.credentials.FinishAssertion(state.WalletAddress, credentials, *state.WebAuthn, response); err != nil {
		if errors.Is(err, authenticator.ErrAssertionInvalid) {
			// a mismatch is a rejection, not a transport error
			s.deleteSession(ctx, state)
			metrics.VerificationsTotal.WithLabelValues("fingerprint", "fail").Inc()
			return &verification.AssertionResponse{
				SessionID:           state.ID,
				FingerprintVerified: false,
				Reason:              "assertion did not match a registered credential",
			}, nil
		}
		return nil, authenticatorError(err)
	}

	digest, err := parseDigest(ident.BiometricHash)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	bound, err := s.binder.Verify(ctx, state.WalletAddress, digest)
	if err != nil {
		return nil, bindError(err)
	}
	if !bound {
		s.deleteSession(ctx, state)
		metrics.VerificationsTotal.WithLabelValues("fingerprint", "fail").Inc()
		return &verification.AssertionResponse{
			SessionID:           state.ID,
			FingerprintVerified: false,
			Reason:              "wallet binding is no longer anchored on the ledger",
		}, nil
	}

	state.Stage = session.StageFingerprintChecked
	state.FingerprintVerified = true
	state.WebAuthn = nil
	if err := s.sessions.Put(ctx, state); err != nil {
		return nil, apperrors.GeneralError(err)
	}

	metrics.VerificationsTotal.WithLabelValues("fingerprint", "pass").Inc()

	return &verification.AssertionResponse{
		SessionID:           state.ID,
		FingerprintVerified: true,
		Stage:               string(state.Stage),
	}, nil
}

// Face checks the face factor against the wallet's stored references and
// combines both factors into the final decision. The fingerprint factor
// must already have passed.
func (s *verificationService) Face(ctx context.Context, sessionID string, frame []byte) (*identity.VerificationOutcome, error) {
	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Stage != session.StageFingerprintChecked || !state.FingerprintVerified {
		return nil, apperrors.PreconditionError(nil, "fingerprint factor has not passed")
	}

	live, err := s.extractor.ExtractPrimary(ctx, frame)
	if err != nil {
		return nil, captureError(err)
	}

	refs, err := s.referenceDescriptors(ctx, state.WalletAddress)
	if err != nil {
		return nil, err
	}

	minDistance, err := face.MinDistance(live, refs)
	if err != nil {
		if errors.Is(err, face.ErrNoReferenceData) {
			return nil, apperrors.PreconditionError(err, "no reference templates for wallet")
		}
		return nil, apperrors.GeneralError(err)
	}

	metrics.FaceDistance.Observe(minDistance)

	result := identity.VerificationResult{
		FingerprintVerified: true,
		FaceVerified:        minDistance < s.threshold,
	}.Combine()

	if result.FaceVerified {
		metrics.VerificationsTotal.WithLabelValues("face", "pass").Inc()
	} else {
		metrics.VerificationsTotal.WithLabelValues("face", "fail").Inc()
	}

	outcome := &identity.VerificationOutcome{VerificationResult: result}
	if result.Combined {
		token, err := s.tokens.Issue(state.WalletAddress)
		if err != nil {
			return nil, apperrors.GeneralError(err)
		}
		outcome.SessionToken = token
	} else {
		outcome.Reason = "face did not match stored references"
	}

	s.deleteSession(ctx, state)

	s.logger.Info("Verification decided",
		zap.String("wallet", state.WalletAddress),
		zap.Float64("min_distance", minDistance),
		zap.Bool("combined", result.Combined))

	return outcome, nil
}

// referenceDescriptors rebuilds descriptors from the wallet's stored
// reference frames. Conversions are independent, so they run in parallel;
// frames that no longer contain a detectable face are skipped.
func (s *verificationService) referenceDescriptors(ctx context.Context, walletAddress string) ([]face.Descriptor, error) {
	refs, err := s.templates.List(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, templatestore.ErrNoTemplates) {
			return nil, apperrors.PreconditionError(err, "no reference templates for wallet")
		}
		return nil, apperrors.DependencyError(err, "template store unavailable")
	}

	descriptors := make([]face.Descriptor, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			d, err := s.extractor.ExtractPrimary(gctx, ref.Frame)
			if errors.Is(err, face.ErrNoFaceDetected) {
				s.logger.Warn("Reference frame has no detectable face",
					zap.String("wallet", walletAddress),
					zap.String("reference", ref.ID))
				return nil
			}
			if err != nil {
				return err
			}
			descriptors[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, captureError(err)
	}

	usable := descriptors[:0]
	for _, d := range descriptors {
		if d != nil {
			usable = append(usable, d)
		}
	}
	return usable, nil
}

func (s *verificationService) getSession(ctx context.Context, sessionID string) (*session.State, error) {
	state, err := s.sessions.Get(ctx, session.KindVerification, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "verification session not found")
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return state, nil
}

func (s *verificationService) deleteSession(ctx context.Context, state *session.State) {
	if err := s.sessions.Delete(ctx, state.Kind, state.ID); err != nil {
		s.logger.Warn("Failed to delete session",
			zap.String("session_id", state.ID),
			zap.Error(err))
		return
	}
	metrics.ActiveSessions.WithLabelValues(string(state.Kind)).Dec()
}

func parseDigest(hexDigest string) ([32]byte, error) {
	var digest [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(hexDigest, "0x"))
	if err != nil {
		return digest, fmt.Errorf("malformed biometric hash: %w", err)
	}
	if len(raw) != len(digest) {
		return digest, fmt.Errorf("biometric hash is %d bytes, want %d", len(raw), len(digest))
	}
	copy(digest[:], raw)
	return digest, nil
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
	default:
		return apperrors.GeneralError(err)
	}
}

func bindError(err error) error {
	if errors.Is(err, ledger.ErrLedgerUnavailable) {
		return apperrors.DependencyError(err, "credential ledger unavailable")
	}
	return apperrors.GeneralError(err)
}
