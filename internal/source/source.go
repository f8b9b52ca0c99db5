// ABOUTME: PCM sources streamed by the reference upstream server
// ABOUTME: Opens WAV, MP3 and FLAC files or a generated click track by path
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
)

// ErrUnsupportedSource is returned for files the upstream cannot stream
var ErrUnsupportedSource = errors.New("unsupported audio source")

// Source provides interleaved little-endian PCM in the layout described by
// Format. Read returns io.EOF at the end of the stream.
type Source interface {
	Read(p []byte) (int, error)
	Format() audio.Format
	Title() string
	Close() error
}

// Open creates a source from a file path. An empty path yields an endless
// click track at DefaultClickBPM.
func Open(path string) (Source, error) {
	if path == "" {
		return NewClickSource(ClickConfig{}), nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return NewWAVSource(path)
	case ".mp3":
		return NewMP3Source(path)
	case ".flac":
		return NewFLACSource(path)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .wav, .mp3, .flac)", ErrUnsupportedSource, ext)
	}
}

// titleFromPath uses the file name without extension as a title
func titleFromPath(path string) string {
	filename := filepath.Base(path)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
