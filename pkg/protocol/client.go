// ABOUTME: WebSocket client for the tempo relay gateway
// ABOUTME: Handles connection, open/accept handshake, and result frame routing
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultHandshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr       string
	Path             string
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Client represents a WebSocket client of the gateway
type Client struct {
	config Config
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.RWMutex

	// Results delivers decoded frames in arrival order; closed when the
	// connection ends.
	Results chan ResultFrame

	// State
	format    audio.Format
	connected bool
	err       error
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new gateway client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = "/"
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		logger:  logger,
		Results: make(chan ResultFrame, 100),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	c.logger.Info("connecting", zap.String("url", u.String()))

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends open, waits for the stream format and answers with accept
func (c *Client) handshake() error {
	if err := c.sendText(ControlOpen); err != nil {
		return fmt.Errorf("failed to send %s: %w", ControlOpen, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read stream format: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	if messageType != websocket.TextMessage {
		return fmt.Errorf("expected text stream format, got message type %d", messageType)
	}

	format, err := audio.ParseFormat(string(data))
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.format = format
	c.mu.Unlock()

	c.logger.Info("stream format received",
		zap.Int("channels", format.Channels),
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("bits_per_sample", format.BitDepth),
		zap.String("encoding", string(format.Encoding)),
	)

	if err := c.sendText(ControlAccept); err != nil {
		return fmt.Errorf("failed to send %s: %w", ControlAccept, err)
	}
	return nil
}

// sendText sends a text message
func (c *Client) sendText(text string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.done)
	defer close(c.Results)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				c.logger.Info("gateway closed the stream", zap.String("reason", closeErr.Text))
				return
			}
			if c.ctx.Err() == nil {
				c.setErr(err)
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			frame, err := DecodeResult(data)
			if err != nil {
				c.setErr(err)
				return
			}
			select {
			case c.Results <- frame:
			case <-c.ctx.Done():
				return
			}
		case websocket.TextMessage:
			format, err := audio.ParseFormat(string(data))
			if err != nil {
				c.logger.Warn("ignoring unexpected text message", zap.String("text", string(data)))
				continue
			}
			c.mu.Lock()
			c.format = format
			c.mu.Unlock()
			c.logger.Info("stream format changed", zap.String("format", format.String()))
		}
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Format returns the most recently announced stream format
func (c *Client) Format() audio.Format {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format
}

// Done is closed once the read loop has exited and Results is closed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Shutdown sends a normal close frame before closing the connection
func (c *Client) Shutdown(reason string) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.logger.Debug("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
