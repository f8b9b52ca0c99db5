// ABOUTME: Audio fundamentals package shared by gateway, upstream and clients
// ABOUTME: Defines the stream Format and its handshake string representation
// Package audio provides the PCM stream description exchanged during the
// relay handshake.
//
// The upstream announces its stream with four space-separated tokens:
//
//	<channels> <sample_rate> <bits_per_sample> <int|float>
//
// Example:
//
//	format, err := audio.ParseFormat("2 44100 16 int")
//	if errors.Is(err, audio.ErrFormatParse) {
//	    // malformed handshake
//	}
//	frame := format.FrameSize() // 4 bytes
package audio
