// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for raw PCM to normalized sample conversion
package decode

import "errors"

// ErrUnsupportedFormat is returned for bit depth / encoding combinations
// that have no normalization rule.
var ErrUnsupportedFormat = errors.New("unsupported PCM format")

// Decoder converts raw PCM bytes to normalized float32 samples in [-1, 1]
type Decoder interface {
	// Decode converts interleaved PCM bytes to interleaved samples.
	// Trailing bytes that do not form a whole sample are ignored.
	Decode(data []byte) ([]float32, error)
}
