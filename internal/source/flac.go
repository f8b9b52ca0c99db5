// ABOUTME: FLAC file source
// ABOUTME: Decodes FLAC frames with mewkiz/flac into 16 or 24-bit interleaved PCM
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACSource reads from a FLAC file
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	format     audio.Format
	sourceBits int
	title      string

	// Decoded bytes of the current frame not yet returned by Read
	pending []byte
}

// NewFLACSource creates a new FLAC audio source. Streams of up to 16 bits are
// emitted as 16-bit PCM, deeper streams as 24-bit PCM.
func NewFLACSource(path string) (*FLACSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	outBits := 16
	if info.BitsPerSample > 16 {
		outBits = 24
	}

	return &FLACSource{
		file:   f,
		stream: stream,
		format: audio.Format{
			Channels:   int(info.NChannels),
			SampleRate: int(info.SampleRate),
			BitDepth:   outBits,
			Encoding:   audio.EncodingInt,
		},
		sourceBits: int(info.BitsPerSample),
		title:      titleFromPath(path),
	}, nil
}

func (s *FLACSource) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		channels := s.format.Channels
		width := s.format.BytesPerSample()
		buf := make([]byte, 0, int(frame.BlockSize)*channels*width)
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				buf = appendSample(buf, scaleBits(frame.Subframes[ch].Samples[i], s.sourceBits, s.format.BitDepth), width)
			}
		}
		s.pending = buf
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// scaleBits shifts a sample from one bit depth to another
func scaleBits(sample int32, from, to int) int32 {
	if from < to {
		return sample << (to - from)
	}
	return sample >> (from - to)
}

func appendSample(buf []byte, sample int32, width int) []byte {
	switch width {
	case 2:
		return append(buf, byte(sample), byte(sample>>8))
	default:
		return append(buf, byte(sample), byte(sample>>8), byte(sample>>16))
	}
}

func (s *FLACSource) Format() audio.Format { return s.format }
func (s *FLACSource) Title() string        { return s.title }
func (s *FLACSource) Close() error         { return s.file.Close() }
