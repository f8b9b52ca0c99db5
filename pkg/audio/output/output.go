// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for playing back relayed analysis windows
package output

// Output represents an audio output device
type Output interface {
	// Open initializes the output device
	Open(sampleRate, channels int) error

	// Write outputs normalized interleaved samples (blocks until written)
	Write(samples []float32) error

	// Close releases output resources
	Close() error
}
