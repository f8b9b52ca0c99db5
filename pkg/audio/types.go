// ABOUTME: Audio format types shared by the gateway, upstream and clients
// ABOUTME: Parses and renders the "<channels> <rate> <bits> <int|float>" handshake string
package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// ErrFormatParse is returned when a handshake string cannot be turned into a Format.
var ErrFormatParse = errors.New("audio format parse error")

// Encoding is the sample representation of a PCM stream.
type Encoding string

const (
	EncodingInt   Encoding = "int"
	EncodingFloat Encoding = "float"
)

// Format describes a raw PCM stream as announced by the upstream handshake.
type Format struct {
	Channels   int
	SampleRate int
	BitDepth   int
	Encoding   Encoding
}

// ParseFormat parses a handshake string of exactly four whitespace-separated
// tokens: channel count, sample rate, bits per sample and encoding.
func ParseFormat(s string) (Format, error) {
	parts := strings.Fields(s)
	if len(parts) != 4 {
		return Format{}, fmt.Errorf("%w: expected 4 fields, got %d in %q", ErrFormatParse, len(parts), s)
	}

	channels, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return Format{}, fmt.Errorf("%w: channels %q: %v", ErrFormatParse, parts[0], err)
	}
	sampleRate, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Format{}, fmt.Errorf("%w: sample rate %q: %v", ErrFormatParse, parts[1], err)
	}
	bitDepth, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return Format{}, fmt.Errorf("%w: bits per sample %q: %v", ErrFormatParse, parts[2], err)
	}

	var encoding Encoding
	switch Encoding(parts[3]) {
	case EncodingInt, EncodingFloat:
		encoding = Encoding(parts[3])
	default:
		return Format{}, fmt.Errorf("%w: invalid PCM format %q", ErrFormatParse, parts[3])
	}

	return Format{
		Channels:   int(channels),
		SampleRate: int(sampleRate),
		BitDepth:   int(bitDepth),
		Encoding:   encoding,
	}, nil
}

// String renders the format as a handshake string. ParseFormat(f.String()) == f.
func (f Format) String() string {
	return fmt.Sprintf("%d %d %d %s", f.Channels, f.SampleRate, f.BitDepth, f.Encoding)
}

// BytesPerSample returns the size of one sample of one channel.
func (f Format) BytesPerSample() int {
	return (f.BitDepth + 7) / 8
}

// FrameSize returns the size of one interleaved frame (one sample per channel).
func (f Format) FrameSize() int {
	return f.BytesPerSample() * f.Channels
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	// Reconstruct 24-bit value and sign-extend to 32-bit
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// FloatToInt16 converts a normalized sample to 16-bit PCM with clipping.
func FloatToInt16(sample float32) int16 {
	scaled := sample * 32768.0
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
