// ABOUTME: Relay legs between the client and upstream connections
// ABOUTME: Forwards control and close frames and routes upstream PCM into the window pipeline
package session

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Resonate-Protocol/beatgate/internal/metrics"
	"github.com/Resonate-Protocol/beatgate/pkg/audio"
	"github.com/Resonate-Protocol/beatgate/pkg/protocol"
	cws "github.com/coder/websocket"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UpstreamConn is the upstream connection. *websocket.Conn from
// coder/websocket satisfies it.
type UpstreamConn interface {
	Read(ctx context.Context) (cws.MessageType, []byte, error)
	Write(ctx context.Context, typ cws.MessageType, p []byte) error
	Close(code cws.StatusCode, reason string) error
	CloseNow() error
}

// clientToServer forwards control text and close frames from the client to
// upstream. Anything else from the client ends the session with an error.
func (s *Session) clientToServer(ctx context.Context) error {
	for {
		messageType, data, err := s.client.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.closingClient.Load() {
				// Reply to a close forwarded from upstream.
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.logger.Debug("client closed",
					zap.Int("code", closeErr.Code),
					zap.String("reason", closeErr.Text))
				return s.forwardCloseUpstream(ctx, closeErr.Code, closeErr.Text)
			}
			return fmt.Errorf("%w: client read: %v", ErrConnection, err)
		}

		switch messageType {
		case websocket.TextMessage:
			text := string(data)
			if !protocol.IsControl(text) {
				return fmt.Errorf("%w: %q", ErrUnexpectedMessage, text)
			}
			s.logger.Debug("forwarding control message", zap.String("message", text))
			if err := s.upstream.Write(ctx, cws.MessageText, data); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: upstream write: %v", ErrConnection, err)
			}
		default:
			return fmt.Errorf("%w: client sent message type %d", ErrUnsupportedMessageType, messageType)
		}
	}
}

func (s *Session) forwardCloseUpstream(ctx context.Context, code int, reason string) error {
	s.closingUpstream.Store(true)
	err := s.upstream.Close(upstreamStatus(code), reason)
	if err == nil || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: forward close upstream: %v", ErrConnection, err)
}

// upstreamStatus maps a client close code onto one that may be sent on the
// wire. 1005, 1006 and 1015 are reserved for local reporting only.
func upstreamStatus(code int) cws.StatusCode {
	switch code {
	case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return cws.StatusNormalClosure
	}
	return cws.StatusCode(code)
}

// serverToClient reads upstream frames. Handshake text updates the session
// format and is forwarded to the client; binary frames go to pcm. pcm is
// closed on return.
func (s *Session) serverToClient(ctx context.Context, pcm chan<- []byte) error {
	defer close(pcm)

	for {
		messageType, data, err := s.upstream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.closingUpstream.Load() {
				// The client side started the close; its relay reports the result.
				return nil
			}
			var closeErr cws.CloseError
			if errors.As(err, &closeErr) {
				s.logger.Debug("upstream closed",
					zap.Int("code", int(closeErr.Code)),
					zap.String("reason", closeErr.Reason))
				return s.forwardCloseToClient(ctx, int(closeErr.Code), closeErr.Reason)
			}
			return fmt.Errorf("%w: upstream read: %v", ErrConnection, err)
		}

		switch messageType {
		case cws.MessageText:
			format, err := audio.ParseFormat(string(data))
			if err != nil {
				return err
			}
			s.format.Store(format)
			s.logger.Info("stream format",
				zap.Int("channels", format.Channels),
				zap.Int("sample_rate", format.SampleRate),
				zap.Int("bits_per_sample", format.BitDepth),
				zap.String("encoding", string(format.Encoding)))
			if err := s.writer.write(ctx, websocket.TextMessage, data); err != nil {
				return err
			}

		case cws.MessageBinary:
			s.stats.chunks.Add(1)
			metrics.ChunksReceivedTotal.Inc()
			select {
			case pcm <- data:
			case <-ctx.Done():
				return ctx.Err()
			}

		default:
			return fmt.Errorf("%w: upstream sent message type %d", ErrUnsupportedMessageType, messageType)
		}
	}
}

func (s *Session) forwardCloseToClient(ctx context.Context, code int, reason string) error {
	s.closingClient.Store(true)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.writer.write(ctx, websocket.CloseMessage, msg); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
