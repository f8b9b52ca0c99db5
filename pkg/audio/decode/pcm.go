// ABOUTME: PCM audio decoder
// ABOUTME: Normalizes 8/16/24/32-bit integer and 32/64-bit float PCM to float32
package decode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
)

// PCMDecoder decodes little-endian PCM audio
type PCMDecoder struct {
	bitDepth int
	encoding audio.Encoding
}

// NewPCM creates a new PCM decoder for the given stream format
func NewPCM(format audio.Format) (Decoder, error) {
	switch format.Encoding {
	case audio.EncodingInt:
		switch format.BitDepth {
		case 8, 16, 24, 32:
		default:
			return nil, fmt.Errorf("%w: %d-bit int (supported: 8, 16, 24, 32)", ErrUnsupportedFormat, format.BitDepth)
		}
	case audio.EncodingFloat:
		switch format.BitDepth {
		case 32, 64:
		default:
			return nil, fmt.Errorf("%w: %d-bit float (supported: 32, 64)", ErrUnsupportedFormat, format.BitDepth)
		}
	default:
		return nil, fmt.Errorf("%w: encoding %q", ErrUnsupportedFormat, format.Encoding)
	}

	return &PCMDecoder{
		bitDepth: format.BitDepth,
		encoding: format.Encoding,
	}, nil
}

// Decode converts PCM bytes to normalized float32 samples
func (d *PCMDecoder) Decode(data []byte) ([]float32, error) {
	width := d.bitDepth / 8
	numSamples := len(data) / width
	samples := make([]float32, numSamples)

	if d.encoding == audio.EncodingFloat {
		for i := 0; i < numSamples; i++ {
			if width == 4 {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			} else {
				samples[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
			}
		}
		return samples, nil
	}

	switch d.bitDepth {
	case 8:
		// 8-bit WAV-style PCM is unsigned with a 128 midpoint
		for i := 0; i < numSamples; i++ {
			samples[i] = (float32(data[i]) - 128) / 128
		}
	case 16:
		for i := 0; i < numSamples; i++ {
			samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		}
	case 24:
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = float32(audio.SampleFrom24Bit(b)) / 8388608
		}
	case 32:
		for i := 0; i < numSamples; i++ {
			samples[i] = float32(float64(int32(binary.LittleEndian.Uint32(data[i*4:]))) / 2147483648)
		}
	}
	return samples, nil
}

// Downmix averages interleaved frames into a mono sequence. Samples of a
// trailing incomplete frame are dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
