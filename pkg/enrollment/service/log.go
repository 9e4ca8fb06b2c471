package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jobmesh/identity-middleware/pkg/enrollment"
	"github.com/jobmesh/identity-middleware/pkg/identity"
)

const serviceName = "EnrollmentService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the enrollment Service.
// Biometric payloads are never logged; only identifiers, sizes and
// durations are.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Start(ctx context.Context, req *enrollment.StartRequest) (resp *enrollment.StartResponse, err error) {
	defer ls.observe("Start", time.Now(), &err,
		zap.String("wallet", req.WalletAddress))()
	return ls.svc.Start(ctx, req)
}

func (ls *logService) Capture(ctx context.Context, sessionID string, frame []byte) (resp *enrollment.CaptureResponse, err error) {
	defer ls.observe("Capture", time.Now(), &err,
		zap.String("session_id", sessionID),
		zap.Int("frame_bytes", len(frame)))()
	return ls.svc.Capture(ctx, sessionID, frame)
}

func (ls *logService) BeginCredential(ctx context.Context, sessionID string) (resp *enrollment.CredentialCreationResponse, err error) {
	defer ls.observe("BeginCredential", time.Now(), &err,
		zap.String("session_id", sessionID))()
	return ls.svc.BeginCredential(ctx, sessionID)
}

func (ls *logService) FinishCredential(ctx context.Context, sessionID string, response []byte) (outcome *identity.EnrollmentOutcome, err error) {
	defer ls.observe("FinishCredential", time.Now(), &err,
		zap.String("session_id", sessionID))()
	return ls.svc.FinishCredential(ctx, sessionID, response)
}

func (ls *logService) Abort(ctx context.Context, sessionID string) (err error) {
	defer ls.observe("Abort", time.Now(), &err,
		zap.String("session_id", sessionID))()
	return ls.svc.Abort(ctx, sessionID)
}

// observe logs method entry immediately and exit when the returned
// function runs, capturing the final error through the pointer.
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
