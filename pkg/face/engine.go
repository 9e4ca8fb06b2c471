package face

import "context"

// Detection is a single detected face within a frame.
type Detection struct {
	Descriptor Descriptor
	Confidence float64
}

// Engine is the face-recognition capability. Any implementation exposing
// detection over a frame satisfies the contract; the production
// implementation delegates to a remote inference service.
type Engine interface {
	// Detect returns all faces found in the frame, in detector order.
	Detect(ctx context.Context, frame []byte) ([]Detection, error)

	// Healthy reports whether the engine has its model assets loaded
	// and is able to serve detections.
	Healthy(ctx context.Context) error
}
