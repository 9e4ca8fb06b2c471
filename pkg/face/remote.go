package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jobmesh/identity-middleware/pkg/config"
)

// RemoteEngine is an Engine backed by an HTTP face-recognition inference
// service. The service runs the detection and recognition models; this
// client only moves frames and descriptors.
type RemoteEngine struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemoteEngine creates an engine client from face configuration
func NewRemoteEngine(cfg config.FaceConfig, logger *zap.Logger) *RemoteEngine {
	return &RemoteEngine{
		baseURL: strings.TrimSuffix(cfg.EngineURL, "/"),
		client: &http.Client{
			Timeout: cfg.DetectTimeout,
		},
		logger: logger,
	}
}

type detectResponse struct {
	Detections []struct {
		Descriptor []float64 `json:"descriptor"`
		Confidence float64   `json:"confidence"`
	} `json:"detections"`
}

// Detect sends the frame to the inference service and returns the detected
// faces in the order the detector reported them.
func (e *RemoteEngine) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/detect", bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("face engine returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode detect response: %w", err)
	}

	detections := make([]Detection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		detections = append(detections, Detection{
			Descriptor: Descriptor(d.Descriptor),
			Confidence: d.Confidence,
		})
	}

	e.logger.Debug("Face detection completed",
		zap.Int("frame_bytes", len(frame)),
		zap.Int("detections", len(detections)))

	return detections, nil
}

// Healthy checks the inference service readiness endpoint. The service
// reports ready only once its model assets are loaded.
func (e *RemoteEngine) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("face engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face engine not ready: status %d", resp.StatusCode)
	}
	return nil
}
