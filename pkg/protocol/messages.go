// ABOUTME: Relay wire protocol message definitions
// ABOUTME: Control literals and the msgpack-encoded analysis result frame
package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Control text messages sent by the client and forwarded verbatim upstream.
const (
	// ControlOpen asks the upstream for its stream format.
	ControlOpen = "open"
	// ControlAccept acknowledges the format and starts PCM streaming.
	ControlAccept = "accept"
)

// IsControl reports whether text is one of the control literals a client may send.
func IsControl(text string) bool {
	return text == ControlOpen || text == ControlAccept
}

// ResultFrame pairs one analysis window's raw PCM with the tempo estimated for it.
// It is sent to the client as a single binary WebSocket message.
type ResultFrame struct {
	PCM []byte  `msgpack:"pcm"`
	BPM float64 `msgpack:"bpm"`
}

// EncodeResult serializes a frame as a msgpack map keyed by field name.
func EncodeResult(frame ResultFrame) ([]byte, error) {
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		return nil, fmt.Errorf("encode result frame: %w", err)
	}
	return data, nil
}

// DecodeResult parses a binary message produced by EncodeResult.
func DecodeResult(data []byte) (ResultFrame, error) {
	var frame ResultFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return ResultFrame{}, fmt.Errorf("decode result frame: %w", err)
	}
	return frame, nil
}
