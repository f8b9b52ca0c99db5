// ABOUTME: RIFF/WAVE file source
// ABOUTME: Streams the data chunk of PCM or IEEE float WAV files without conversion
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WAVSource reads sample data straight from a WAV file
type WAVSource struct {
	file   *os.File
	data   io.Reader
	format audio.Format
	title  string
}

// NewWAVSource opens a WAV file and positions it at the start of its data chunk
func NewWAVSource(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	format, dataSize, err := readWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &WAVSource{
		file:   f,
		data:   io.LimitReader(f, dataSize),
		format: format,
		title:  titleFromPath(path),
	}, nil
}

// readWAVHeader walks the RIFF chunks up to "data" and returns the format
// and the data chunk size. The reader is left at the first sample byte.
func readWAVHeader(r io.Reader) (audio.Format, int64, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return audio.Format{}, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return audio.Format{}, 0, errors.New("not a RIFF/WAVE file")
	}

	var format audio.Format
	haveFormat := false
	chunkHeader := make([]byte, 8)

	for {
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			return audio.Format{}, 0, fmt.Errorf("missing fmt or data chunk: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return audio.Format{}, 0, errors.New("fmt chunk too small")
			}
			payload := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, payload); err != nil {
				return audio.Format{}, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			parsed, err := parseFmtChunk(payload)
			if err != nil {
				return audio.Format{}, 0, err
			}
			format, haveFormat = parsed, true

		case "data":
			if !haveFormat {
				return audio.Format{}, 0, errors.New("data chunk before fmt chunk")
			}
			return format, size, nil

		default:
			// Chunks are word aligned
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return audio.Format{}, 0, fmt.Errorf("skip chunk %q: %w", id, err)
			}
		}
	}
}

func parseFmtChunk(payload []byte) (audio.Format, error) {
	tag := binary.LittleEndian.Uint16(payload[0:2])
	format := audio.Format{
		Channels:   int(binary.LittleEndian.Uint16(payload[2:4])),
		SampleRate: int(binary.LittleEndian.Uint32(payload[4:8])),
		BitDepth:   int(binary.LittleEndian.Uint16(payload[14:16])),
	}

	switch tag {
	case wavFormatPCM:
		format.Encoding = audio.EncodingInt
	case wavFormatFloat:
		format.Encoding = audio.EncodingFloat
	default:
		return audio.Format{}, fmt.Errorf("%w: WAV format tag %d", ErrUnsupportedSource, tag)
	}

	if format.Channels < 1 || format.SampleRate < 1 || format.BitDepth%8 != 0 || format.BitDepth == 0 {
		return audio.Format{}, fmt.Errorf("%w: invalid WAV format %s", ErrUnsupportedSource, format)
	}
	return format, nil
}

func (s *WAVSource) Read(p []byte) (int, error) { return s.data.Read(p) }
func (s *WAVSource) Format() audio.Format       { return s.format }
func (s *WAVSource) Title() string              { return s.title }
func (s *WAVSource) Close() error               { return s.file.Close() }
