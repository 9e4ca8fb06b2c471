package face

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Extractor turns an image frame into the descriptor of its primary face.
// Capture must not be attempted before WarmUp has completed; callers get
// ErrModelsNotReady until then.
type Extractor struct {
	engine Engine
	ready  atomic.Bool
	logger *zap.Logger
}

// NewExtractor creates an extractor over the given engine
func NewExtractor(engine Engine, logger *zap.Logger) *Extractor {
	return &Extractor{
		engine: engine,
		logger: logger,
	}
}

// WarmUp verifies the engine has its models loaded and marks the extractor
// ready. It must complete successfully before any extraction.
func (e *Extractor) WarmUp(ctx context.Context) error {
	if err := e.engine.Healthy(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrModelsNotReady, err)
	}
	e.ready.Store(true)
	e.logger.Info("Face recognition engine ready")
	return nil
}

// Ready reports whether the extractor has been warmed up.
func (e *Extractor) Ready() bool {
	return e.ready.Load()
}

// ExtractPrimary detects faces in the frame and returns the descriptor of
// the primary one. When multiple faces are found the highest-confidence
// detection wins; exact confidence ties fall back to detector order.
func (e *Extractor) ExtractPrimary(ctx context.Context, frame []byte) (Descriptor, error) {
	if !e.ready.Load() {
		return nil, ErrModelsNotReady
	}

	detections, err := e.engine.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(detections) == 0 {
		return nil, ErrNoFaceDetected
	}

	primary := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > primary.Confidence {
			primary = d
		}
	}

	if len(detections) > 1 {
		e.logger.Debug("Multiple faces in frame, using highest confidence",
			zap.Int("detections", len(detections)),
			zap.Float64("confidence", primary.Confidence))
	}

	return primary.Descriptor, nil
}
