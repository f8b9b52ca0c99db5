// ABOUTME: Reference upstream server for the gateway
// ABOUTME: Answers open with the stream format and streams paced PCM chunks after accept
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/beatgate/internal/source"
	"github.com/Resonate-Protocol/beatgate/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultFramesPerChunk is the number of interleaved frames per binary message
	DefaultFramesPerChunk = 1024

	writeDeadline = 10 * time.Second
)

// Config holds upstream server configuration
type Config struct {
	// OpenSource is called once per connection; each client streams from the start.
	OpenSource     func() (source.Source, error)
	FramesPerChunk int
	// Realtime paces chunks at the source's playback rate
	Realtime bool
	Logger   *zap.Logger
}

// Server streams a PCM source to each connected client
type Server struct {
	config   Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates an upstream server
func New(config Config) *Server {
	if config.FramesPerChunk <= 0 {
		config.FramesPerChunk = DefaultFramesPerChunk
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves one client
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Info("client connected")

	src, err := s.config.OpenSource()
	if err != nil {
		logger.Error("failed to open source", zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "source unavailable"))
		return
	}
	defer src.Close()

	c := &client{
		conn:   conn,
		src:    src,
		logger: logger,
	}
	c.serve(s.config.FramesPerChunk, s.config.Realtime)
	logger.Info("client disconnected")
}

// client is one upstream connection. Reads happen on the serve goroutine;
// writes come from serve and the streamer and are serialized by mu.
type client struct {
	conn   *websocket.Conn
	src    source.Source
	logger *zap.Logger
	mu     sync.Mutex
}

func (c *client) serve(framesPerChunk int, realtime bool) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	streaming := false
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.closeWith(websocket.ClosePolicyViolation, "binary messages are not accepted")
			return
		}

		switch string(data) {
		case protocol.ControlOpen:
			format := c.src.Format()
			c.logger.Info("sending stream format", zap.String("format", format.String()))
			if err := c.write(websocket.TextMessage, []byte(format.String())); err != nil {
				return
			}

		case protocol.ControlAccept:
			if streaming {
				continue
			}
			streaming = true
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.stream(ctx, framesPerChunk, realtime); err != nil && ctx.Err() == nil {
					c.logger.Warn("stream ended with error", zap.Error(err))
				}
			}()

		default:
			c.logger.Warn("unexpected message", zap.String("message", string(data)))
			c.closeWith(websocket.ClosePolicyViolation, "unexpected message")
			return
		}
	}
}

// stream sends the source as fixed-size chunks and closes normally at EOF
func (c *client) stream(ctx context.Context, framesPerChunk int, realtime bool) error {
	format := c.src.Format()
	chunk := make([]byte, framesPerChunk*format.FrameSize())
	interval := time.Duration(float64(framesPerChunk) / float64(format.SampleRate) * float64(time.Second))

	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	sent := 0
	for {
		n, err := io.ReadFull(c.src, chunk)
		n -= n % format.FrameSize()
		if n > 0 {
			if werr := c.write(websocket.BinaryMessage, chunk[:n]); werr != nil {
				return werr
			}
			sent++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.logger.Info("end of stream", zap.Int("chunks", sent))
			return c.closeWith(websocket.CloseNormalClosure, "end of stream")
		}
		if err != nil {
			c.closeWith(websocket.CloseInternalServerErr, "source error")
			return fmt.Errorf("read source: %w", err)
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(messageType, data)
}

func (c *client) closeWith(code int, reason string) error {
	return c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
