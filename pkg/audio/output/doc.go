// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface and the oto implementation
// Package output plays back the PCM carried in result frames.
//
// Samples are normalized float32 values as produced by pkg/audio/decode;
// the oto backend renders them as signed 16-bit little-endian PCM.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(format.SampleRate, format.Channels)
//	err = out.Write(samples)
package output
