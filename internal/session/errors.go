// ABOUTME: Error taxonomy for relay sessions
// ABOUTME: Sentinel errors per failure class and the outcome label used for metrics and logs
package session

import (
	"context"
	"errors"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
)

var (
	// ErrUnexpectedMessage is returned when the client sends a text message
	// other than a control literal.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrUnsupportedMessageType is returned for a frame type a relay leg does not carry.
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	// ErrFormatUndefined is returned when a window arrives before any handshake.
	ErrFormatUndefined = errors.New("audio format undefined")
	// ErrAnalysis wraps failures of the analyzer or of sample conversion.
	ErrAnalysis = errors.New("analysis failed")
	// ErrSerialization wraps result frame encoding failures.
	ErrSerialization = errors.New("serialization failed")
	// ErrConnection wraps I/O failures on either connection leg.
	ErrConnection = errors.New("connection error")
)

// Outcome classifies a session result into a short label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrUnexpectedMessage), errors.Is(err, ErrUnsupportedMessageType):
		return "protocol"
	case errors.Is(err, audio.ErrFormatParse):
		return "format"
	case errors.Is(err, ErrFormatUndefined):
		return "state"
	case errors.Is(err, ErrAnalysis):
		return "analysis"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrConnection):
		return "transport"
	default:
		return "error"
	}
}
