// Package face provides face descriptor extraction and comparison.
//
// A descriptor is a fixed-length feature vector produced by an external
// face-recognition engine. Descriptors are compared only via Euclidean
// distance and are never invertible to the source image.
package face

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrModelsNotReady is returned when the recognition engine has not
	// finished loading its model assets.
	ErrModelsNotReady = errors.New("face recognition models not ready")

	// ErrNoFaceDetected is returned when a frame contains no detectable face.
	ErrNoFaceDetected = errors.New("no face detected in frame")

	// ErrNoReferenceData is returned when a wallet has no stored reference
	// descriptors to compare against.
	ErrNoReferenceData = errors.New("no reference descriptors available")
)

// Descriptor is a fixed-length face feature vector.
type Descriptor []float64

// Distance returns the Euclidean distance between two descriptors.
// It is symmetric, non-negative and zero iff both inputs are identical.
func Distance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("descriptor length mismatch: %d vs %d", len(a), len(b))
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// MinDistance returns the minimum Euclidean distance between the live
// descriptor and any of the references.
func MinDistance(live Descriptor, refs []Descriptor) (float64, error) {
	if len(refs) == 0 {
		return 0, ErrNoReferenceData
	}

	min := math.Inf(1)
	for _, ref := range refs {
		d, err := Distance(live, ref)
		if err != nil {
			return 0, err
		}
		if d < min {
			min = d
		}
	}
	return min, nil
}

// Digest returns the SHA-256 digest of the canonical serialization of the
// descriptor. The serialization is the big-endian IEEE-754 bit pattern of
// each component in order, so equal descriptors always hash equally.
func (d Descriptor) Digest() [32]byte {
	buf := make([]byte, 8*len(d))
	for i, v := range d {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return sha256.Sum256(buf)
}

// DigestHex returns the descriptor digest as a 0x-prefixed hex string.
func (d Descriptor) DigestHex() string {
	sum := d.Digest()
	return "0x" + hex.EncodeToString(sum[:])
}
