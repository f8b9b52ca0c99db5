// ABOUTME: In-memory connection fakes for session tests
// ABOUTME: Stand in for the gorilla client socket and the coder upstream socket
package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/gorilla/websocket"
)

type clientFrame struct {
	messageType int
	data        []byte
	err         error
}

type fakeClientConn struct {
	incoming chan clientFrame

	mu        sync.Mutex
	written   []clientFrame
	closeSent bool

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeClientConn() *fakeClientConn {
	return &fakeClientConn{
		incoming: make(chan clientFrame, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeClientConn) send(messageType int, data string) {
	c.incoming <- clientFrame{messageType: messageType, data: []byte(data)}
}

func (c *fakeClientConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.incoming:
		if f.err != nil {
			return 0, nil, f.err
		}
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeClientConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeSent {
		return websocket.ErrCloseSent
	}
	c.written = append(c.written, clientFrame{messageType: messageType, data: append([]byte(nil), data...)})
	if messageType == websocket.CloseMessage {
		c.closeSent = true
	}
	return nil
}

func (c *fakeClientConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeClientConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (c *fakeClientConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeClientConn) frames(messageType int) []clientFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []clientFrame
	for _, f := range c.written {
		if f.messageType == messageType {
			out = append(out, f)
		}
	}
	return out
}

type upstreamFrame struct {
	messageType cws.MessageType
	data        []byte
	err         error
}

type fakeUpstreamConn struct {
	incoming chan upstreamFrame

	mu          sync.Mutex
	written     []upstreamFrame
	closeCalled bool
	closeCode   cws.StatusCode
	closeReason string

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeUpstreamConn() *fakeUpstreamConn {
	return &fakeUpstreamConn{
		incoming: make(chan upstreamFrame, 1024),
		closed:   make(chan struct{}),
	}
}

func (c *fakeUpstreamConn) sendText(text string) {
	c.incoming <- upstreamFrame{messageType: cws.MessageText, data: []byte(text)}
}

func (c *fakeUpstreamConn) sendBinary(data []byte) {
	c.incoming <- upstreamFrame{messageType: cws.MessageBinary, data: data}
}

func (c *fakeUpstreamConn) sendClose(code cws.StatusCode, reason string) {
	c.incoming <- upstreamFrame{err: cws.CloseError{Code: code, Reason: reason}}
}

func (c *fakeUpstreamConn) Read(ctx context.Context) (cws.MessageType, []byte, error) {
	select {
	case f := <-c.incoming:
		if f.err != nil {
			return 0, nil, f.err
		}
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeUpstreamConn) Write(ctx context.Context, typ cws.MessageType, p []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, upstreamFrame{messageType: typ, data: append([]byte(nil), p...)})
	return nil
}

func (c *fakeUpstreamConn) Close(code cws.StatusCode, reason string) error {
	c.mu.Lock()
	c.closeCalled = true
	c.closeCode = code
	c.closeReason = reason
	c.mu.Unlock()
	return c.CloseNow()
}

func (c *fakeUpstreamConn) CloseNow() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeUpstreamConn) writtenTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.written {
		if f.messageType == cws.MessageText {
			out = append(out, string(f.data))
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
