// ABOUTME: MP3 file source
// ABOUTME: Decodes MP3 to 16-bit stereo PCM with go-mp3
package source

import (
	"fmt"
	"os"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Source reads from an MP3 file
type MP3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
	title   string
}

// NewMP3Source creates a new MP3 audio source
func NewMP3Source(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3Source{
		file:    f,
		decoder: decoder,
		// go-mp3 always produces interleaved stereo int16
		format: audio.Format{
			Channels:   2,
			SampleRate: decoder.SampleRate(),
			BitDepth:   16,
			Encoding:   audio.EncodingInt,
		},
		title: titleFromPath(path),
	}, nil
}

func (s *MP3Source) Read(p []byte) (int, error) { return s.decoder.Read(p) }
func (s *MP3Source) Format() audio.Format       { return s.format }
func (s *MP3Source) Title() string              { return s.title }
func (s *MP3Source) Close() error               { return s.file.Close() }
