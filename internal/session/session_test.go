// ABOUTME: Tests for the relay session
// ABOUTME: Drives full sessions over in-memory connections and checks forwarding, errors and teardown
package session

import (
	"bytes"
	"context"
	"errors"
	"math"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/beatgate/internal/analysis"
	"github.com/Resonate-Protocol/beatgate/internal/testutil"
	"github.com/Resonate-Protocol/beatgate/pkg/audio"
	"github.com/Resonate-Protocol/beatgate/pkg/protocol"
	cws "github.com/coder/websocket"
	"github.com/gorilla/websocket"
)

func constAnalyzer(bpm float64) analysis.Analyzer {
	return analysis.Func(func(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
		return bpm, nil
	})
}

func testConfig(windowSize, slideSize int) Config {
	config := DefaultConfig()
	config.WindowSize = windowSize
	config.SlideSize = slideSize
	return config
}

type harness struct {
	client   *fakeClientConn
	upstream *fakeUpstreamConn
	session  *Session
	cancel   context.CancelFunc
	done     chan error
}

func startSession(t *testing.T, analyzer analysis.Analyzer, config Config) *harness {
	t.Helper()
	client := newFakeClientConn()
	upstream := newFakeUpstreamConn()

	s, err := New("test", "127.0.0.1:1", client, upstream, analyzer, config, nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{client: client, upstream: upstream, session: s, cancel: cancel, done: make(chan error, 1)}
	go func() {
		h.done <- s.Run(ctx)
	}()
	t.Cleanup(cancel)
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func TestSessionRelaysHandshakeAndResults(t *testing.T) {
	h := startSession(t, constAnalyzer(120), testConfig(4, 2))

	h.client.send(websocket.TextMessage, protocol.ControlOpen)
	waitFor(t, "open forwarded", func() bool { return len(h.upstream.writtenTexts()) == 1 })

	h.upstream.sendText("1 8000 16 int")
	waitFor(t, "handshake forwarded", func() bool { return len(h.client.frames(websocket.TextMessage)) == 1 })
	if got := string(h.client.frames(websocket.TextMessage)[0].data); got != "1 8000 16 int" {
		t.Errorf("expected handshake text forwarded verbatim, got %q", got)
	}

	h.client.send(websocket.TextMessage, protocol.ControlAccept)
	waitFor(t, "accept forwarded", func() bool { return len(h.upstream.writtenTexts()) == 2 })
	if texts := h.upstream.writtenTexts(); texts[0] != "open" || texts[1] != "accept" {
		t.Errorf("expected open then accept upstream, got %v", texts)
	}

	for i := 0; i < 6; i++ {
		h.upstream.sendBinary([]byte{byte(i), 0})
	}
	// 6 chunks with W=4, S=2 give windows at chunks 4 and 6
	waitFor(t, "two result frames", func() bool { return len(h.client.frames(websocket.BinaryMessage)) == 2 })

	frames := h.client.frames(websocket.BinaryMessage)
	expected := [][]byte{{0, 0, 1, 0}, {2, 0, 3, 0}}
	for i, f := range frames {
		result, err := protocol.DecodeResult(f.data)
		if err != nil {
			t.Fatalf("frame %d: decode failed: %v", i, err)
		}
		if !bytes.Equal(result.PCM, expected[i]) {
			t.Errorf("frame %d: expected pcm %v, got %v", i, expected[i], result.PCM)
		}
		if result.BPM != 120 {
			t.Errorf("frame %d: expected bpm 120, got %v", i, result.BPM)
		}
	}

	waitFor(t, "stats updated", func() bool { return h.session.Stats().Frames == 2 })
	stats := h.session.Stats()
	if stats.Chunks != 6 || stats.Windows != 2 || stats.Frames != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Format != "1 8000 16 int" || stats.LastBPM != 120 {
		t.Errorf("unexpected stats format/bpm: %+v", stats)
	}

	h.upstream.sendClose(cws.StatusNormalClosure, "end of stream")
	if err := h.wait(t); err != nil {
		t.Fatalf("expected clean end, got %v", err)
	}

	closes := h.client.frames(websocket.CloseMessage)
	if len(closes) != 1 {
		t.Fatalf("expected one close frame to the client, got %d", len(closes))
	}
	if want := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of stream"); !bytes.Equal(closes[0].data, want) {
		t.Errorf("expected close payload %v, got %v", want, closes[0].data)
	}
}

func TestSessionResultsKeepWindowOrder(t *testing.T) {
	var calls atomic.Int64
	slow := analysis.Func(func(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
		time.Sleep(time.Millisecond)
		return float64(calls.Add(1)), nil
	})

	config := testConfig(1, 1)
	config.PCMCapacity = 1
	config.WindowCapacity = 1
	h := startSession(t, slow, config)

	h.upstream.sendText("1 8000 8 int")
	for i := 0; i < 20; i++ {
		h.upstream.sendBinary([]byte{byte(i)})
	}
	waitFor(t, "all result frames", func() bool { return len(h.client.frames(websocket.BinaryMessage)) == 20 })

	for i, f := range h.client.frames(websocket.BinaryMessage) {
		result, err := protocol.DecodeResult(f.data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(result.PCM) != 1 || result.PCM[0] != byte(i) {
			t.Errorf("frame %d carries pcm %v", i, result.PCM)
		}
		if result.BPM != float64(i+1) {
			t.Errorf("frame %d: expected result %d, got %v", i, i+1, result.BPM)
		}
	}

	h.cancel()
	if err := h.wait(t); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSessionErrors(t *testing.T) {
	tests := []struct {
		name     string
		analyzer analysis.Analyzer
		drive    func(h *harness)
		expected error
	}{
		{
			name:     "unexpected client text",
			analyzer: constAnalyzer(1),
			drive:    func(h *harness) { h.client.send(websocket.TextMessage, "hello") },
			expected: ErrUnexpectedMessage,
		},
		{
			name:     "binary from client",
			analyzer: constAnalyzer(1),
			drive:    func(h *harness) { h.client.send(websocket.BinaryMessage, "\x00\x01") },
			expected: ErrUnsupportedMessageType,
		},
		{
			name:     "malformed handshake",
			analyzer: constAnalyzer(1),
			drive:    func(h *harness) { h.upstream.sendText("2 44100 16 unknown") },
			expected: audio.ErrFormatParse,
		},
		{
			name:     "pcm before handshake",
			analyzer: constAnalyzer(1),
			drive:    func(h *harness) { h.upstream.sendBinary([]byte{0, 0}) },
			expected: ErrFormatUndefined,
		},
		{
			name: "analyzer failure",
			analyzer: analysis.Func(func(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
				return 0, errors.New("no beat")
			}),
			drive: func(h *harness) {
				h.upstream.sendText("1 8000 16 int")
				h.upstream.sendBinary([]byte{0, 0})
			},
			expected: ErrAnalysis,
		},
		{
			name:     "analyzer returns NaN",
			analyzer: constAnalyzer(math.NaN()),
			drive: func(h *harness) {
				h.upstream.sendText("1 8000 16 int")
				h.upstream.sendBinary([]byte{0, 0})
			},
			expected: ErrAnalysis,
		},
		{
			name:     "unsupported sample format",
			analyzer: constAnalyzer(1),
			drive: func(h *harness) {
				h.upstream.sendText("1 8000 12 int")
				h.upstream.sendBinary([]byte{0, 0})
			},
			expected: ErrAnalysis,
		},
		{
			name:     "upstream transport failure",
			analyzer: constAnalyzer(1),
			drive: func(h *harness) {
				h.upstream.incoming <- upstreamFrame{err: errors.New("connection reset")}
			},
			expected: ErrConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startSession(t, tt.analyzer, testConfig(1, 1))
			tt.drive(h)

			err := h.wait(t)
			if !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
			if len(h.client.frames(websocket.BinaryMessage)) != 0 {
				t.Error("no result frame should be written")
			}
		})
	}
}

func TestSessionUnexpectedTextIsNotForwarded(t *testing.T) {
	h := startSession(t, constAnalyzer(1), DefaultConfig())
	h.client.send(websocket.TextMessage, "hello")

	if err := h.wait(t); !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
	if texts := h.upstream.writtenTexts(); len(texts) != 0 {
		t.Errorf("expected nothing forwarded upstream, got %v", texts)
	}
}

func TestSessionForwardsClientClose(t *testing.T) {
	tests := []struct {
		name         string
		code         int
		text         string
		expectedCode cws.StatusCode
	}{
		{"normal", websocket.CloseNormalClosure, "bye", cws.StatusNormalClosure},
		{"application code", 4000, "custom", cws.StatusCode(4000)},
		{"going away", websocket.CloseGoingAway, "", cws.StatusGoingAway},
		{"no status", websocket.CloseNoStatusReceived, "", cws.StatusNormalClosure},
		{"abnormal", websocket.CloseAbnormalClosure, "unexpected EOF", cws.StatusNormalClosure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startSession(t, constAnalyzer(1), DefaultConfig())
			h.client.incoming <- clientFrame{err: &websocket.CloseError{Code: tt.code, Text: tt.text}}

			if err := h.wait(t); err != nil {
				t.Fatalf("expected clean end, got %v", err)
			}

			h.upstream.mu.Lock()
			defer h.upstream.mu.Unlock()
			if !h.upstream.closeCalled {
				t.Fatal("expected close forwarded upstream")
			}
			if h.upstream.closeCode != tt.expectedCode {
				t.Errorf("expected code %d, got %d", tt.expectedCode, h.upstream.closeCode)
			}
			if h.upstream.closeReason != tt.text {
				t.Errorf("expected reason %q, got %q", tt.text, h.upstream.closeReason)
			}
		})
	}
}

func TestSessionTeardownReleasesAllStages(t *testing.T) {
	baseline := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		blocking := analysis.Func(func(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		config := testConfig(1, 1)
		config.PCMCapacity = 1
		config.WindowCapacity = 1
		h := startSession(t, blocking, config)

		// Fill every channel behind the blocked analyzer, then end the client leg
		h.upstream.sendText("1 8000 8 int")
		for j := 0; j < 10; j++ {
			h.upstream.sendBinary([]byte{byte(j)})
		}
		waitFor(t, "pipeline backed up", func() bool { return h.session.Stats().Chunks >= 3 })
		h.client.incoming <- clientFrame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}

		if err := h.wait(t); err != nil {
			t.Fatalf("expected clean end, got %v", err)
		}
		h.cancel()
	}

	testutil.AssertNoGoroutineLeaks(t, baseline, 2)
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.WindowSize = 0 }},
		{"zero slide", func(c *Config) { c.SlideSize = 0 }},
		{"zero pcm capacity", func(c *Config) { c.PCMCapacity = 0 }},
		{"zero window capacity", func(c *Config) { c.WindowCapacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			if _, err := New("x", "", newFakeClientConn(), newFakeUpstreamConn(), constAnalyzer(1), config, nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := New("x", "", newFakeClientConn(), newFakeUpstreamConn(), nil, DefaultConfig(), nil); err == nil {
		t.Error("expected error for missing analyzer")
	}
}
