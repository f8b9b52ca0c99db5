// ABOUTME: Single-owner writer for the client connection
// ABOUTME: Serializes frames from every stage onto the socket and keeps it alive with pings
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

// ClientConn is the client-facing connection. *websocket.Conn from
// gorilla/websocket satisfies it.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type writeRequest struct {
	messageType int
	data        []byte
	result      chan error
}

// clientWriter owns every write to the client connection. Stages submit
// requests and wait for the result, so a frame is never interleaved with
// another and no stage holds the socket between writes.
type clientWriter struct {
	conn         ClientConn
	requests     chan writeRequest
	writeTimeout time.Duration
	pingInterval time.Duration
}

func newClientWriter(conn ClientConn, writeTimeout, pingInterval time.Duration) *clientWriter {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &clientWriter{
		conn:         conn,
		requests:     make(chan writeRequest),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// run serves write requests until ctx is done or a write fails. A write
// after a close frame was sent is reported to the caller as success and ends
// the writer.
func (w *clientWriter) run(ctx context.Context) error {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-w.requests:
			w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
			err := w.conn.WriteMessage(req.messageType, req.data)
			if errors.Is(err, websocket.ErrCloseSent) {
				req.result <- nil
				return nil
			}
			if err != nil {
				err = fmt.Errorf("%w: client write: %v", ErrConnection, err)
				req.result <- err
				return err
			}
			req.result <- nil
			if req.messageType == websocket.CloseMessage {
				return nil
			}

		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout)); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return nil
				}
				return fmt.Errorf("%w: client ping: %v", ErrConnection, err)
			}
		}
	}
}

// write submits one frame and waits until it has been written.
func (w *clientWriter) write(ctx context.Context, messageType int, data []byte) error {
	req := writeRequest{
		messageType: messageType,
		data:        data,
		result:      make(chan error, 1),
	}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
