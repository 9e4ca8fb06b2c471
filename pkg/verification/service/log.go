package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jobmesh/identity-middleware/pkg/identity"
	"github.com/jobmesh/identity-middleware/pkg/verification"
)

const serviceName = "VerificationService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the verification Service.
// Biometric payloads are never logged; only identifiers, sizes and
// durations are.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Start(ctx context.Context, req *verification.StartRequest) (resp *verification.StartResponse, err error) {
	defer ls.observe("Start", time.Now(), &err,
		zap.String("wallet", req.WalletAddress))()
	return ls.svc.Start(ctx, req)
}

func (ls *logService) Assertion(ctx context.Context, sessionID string, response []byte) (resp *verification.AssertionResponse, err error) {
	defer ls.observe("Assertion", time.Now(), &err,
		zap.String("session_id", sessionID))()
	return ls.svc.Assertion(ctx, sessionID, response)
}

func (ls *logService) Face(ctx context.Context, sessionID string, frame []byte) (outcome *identity.VerificationOutcome, err error) {
	defer ls.observe("Face", time.Now(), &err,
		zap.String("session_id", sessionID),
		zap.Int("frame_bytes", len(frame)))()
	return ls.svc.Face(ctx, sessionID, frame)
}

func (ls *logService) observe(method string, start time.Time, errp *error, fields ...zap.Field) func() {
	entry := append([]zap.Field{
		zap.String("service", serviceName),
		zap.String("method", method),
	}, fields...)
	ls.logger.Info(method+" started", entry...)

	return func() {
		duration := time.Since(start)
		if *errp != nil {
			ls.logger.Error(method+" failed",
				append(entry, zap.Duration("duration", duration), zap.Error(*errp))...)
			return
		}
		ls.logger.Info(method+" completed",
			append(entry, zap.Duration("duration", duration))...)
	}
}
