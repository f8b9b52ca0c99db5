// ABOUTME: Click track generator
// ABOUTME: Produces a metronome pulse at a fixed tempo so the gateway has a beat to find
package source

import (
	"io"
	"math"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
)

const (
	// DefaultClickBPM is the tempo of the generated click track
	DefaultClickBPM        = 120.0
	defaultClickSampleRate = 44100
	defaultClickChannels   = 2
	clickFrequency         = 1000.0
	clickLength            = 0.02 // seconds
)

// ClickConfig describes a generated click track. Zero values take defaults.
type ClickConfig struct {
	BPM        float64
	SampleRate int
	Channels   int
	Seconds    float64 // 0 for an endless track
}

// ClickSource generates 16-bit PCM with a decaying tone burst on every beat
type ClickSource struct {
	config      ClickConfig
	format      audio.Format
	frameIndex  int64
	totalFrames int64 // 0 for endless
	interval    float64
	pending     []byte
}

// NewClickSource creates a click track generator
func NewClickSource(config ClickConfig) *ClickSource {
	if config.BPM <= 0 {
		config.BPM = DefaultClickBPM
	}
	if config.SampleRate <= 0 {
		config.SampleRate = defaultClickSampleRate
	}
	if config.Channels <= 0 {
		config.Channels = defaultClickChannels
	}

	return &ClickSource{
		config: config,
		format: audio.Format{
			Channels:   config.Channels,
			SampleRate: config.SampleRate,
			BitDepth:   16,
			Encoding:   audio.EncodingInt,
		},
		totalFrames: int64(config.Seconds * float64(config.SampleRate)),
		interval:    60 / config.BPM * float64(config.SampleRate),
	}
}

// Read fills p with whole frames; a trailing partial frame is kept for the next call.
func (s *ClickSource) Read(p []byte) (int, error) {
	frameSize := s.format.FrameSize()
	n := 0

	if len(s.pending) > 0 {
		c := copy(p, s.pending)
		s.pending = s.pending[c:]
		n += c
	}

	for n < len(p) {
		if s.totalFrames > 0 && s.frameIndex >= s.totalFrames {
			if n == 0 {
				return 0, io.EOF
			}
			break
		}

		frame := make([]byte, 0, frameSize)
		v := s.sampleAt(s.frameIndex)
		for ch := 0; ch < s.format.Channels; ch++ {
			frame = append(frame, byte(v), byte(uint16(v)>>8))
		}
		s.frameIndex++

		c := copy(p[n:], frame)
		n += c
		if c < len(frame) {
			s.pending = frame[c:]
		}
	}

	return n, nil
}

// sampleAt returns the int16 value for a frame index
func (s *ClickSource) sampleAt(frame int64) int16 {
	rate := float64(s.config.SampleRate)
	pos := math.Mod(float64(frame), s.interval)
	t := pos / rate
	if t >= clickLength {
		return 0
	}
	decay := math.Exp(-t / clickLength * 5)
	v := 0.8 * decay * math.Sin(2*math.Pi*clickFrequency*t)
	return int16(v * 32767)
}

func (s *ClickSource) Format() audio.Format { return s.format }
func (s *ClickSource) Title() string        { return "Click Track" }
func (s *ClickSource) Close() error         { return nil }
