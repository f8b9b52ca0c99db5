// ABOUTME: Relay session orchestrator
// ABOUTME: Runs the relay, windowing and analysis stages for one client and tears them down together
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/beatgate/internal/analysis"
	"github.com/Resonate-Protocol/beatgate/internal/window"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChannelCapacity bounds both the PCM and window channels
	DefaultChannelCapacity = 1000
)

// Config holds per-session pipeline settings
type Config struct {
	WindowSize     int
	SlideSize      int
	PCMCapacity    int
	WindowCapacity int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// DefaultConfig returns the standard pipeline settings
func DefaultConfig() Config {
	return Config{
		WindowSize:     window.DefaultWindowSize,
		SlideSize:      window.DefaultSlideSize,
		PCMCapacity:    DefaultChannelCapacity,
		WindowCapacity: DefaultChannelCapacity,
		WriteTimeout:   defaultWriteTimeout,
		PingInterval:   defaultPingInterval,
	}
}

// Session relays one client connection through one upstream connection.
// A Session runs once.
type Session struct {
	id     string
	remote string
	config Config

	client   ClientConn
	upstream UpstreamConn
	analyzer analysis.Analyzer
	logger   *zap.Logger

	format     FormatState
	writer     *clientWriter
	aggregator *window.Aggregator

	closingUpstream atomic.Bool
	closingClient   atomic.Bool

	started time.Time
	stats   counters
}

type counters struct {
	chunks  atomic.Int64
	windows atomic.Int64
	frames  atomic.Int64
	lastBPM atomic.Uint64
}

// Stats is a point-in-time view of a running session
type Stats struct {
	ID      string
	Remote  string
	Format  string
	Started time.Time
	Chunks  int64
	Windows int64
	Frames  int64
	LastBPM float64
}

// New creates a session over an established client and upstream connection.
func New(id, remote string, client ClientConn, upstream UpstreamConn, analyzer analysis.Analyzer, config Config, logger *zap.Logger) (*Session, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if config.PCMCapacity < 1 || config.WindowCapacity < 1 {
		return nil, fmt.Errorf("channel capacities must be positive, got %d/%d", config.PCMCapacity, config.WindowCapacity)
	}
	aggregator, err := window.New(config.WindowSize, config.SlideSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		id:         id,
		remote:     remote,
		config:     config,
		client:     client,
		upstream:   upstream,
		analyzer:   analyzer,
		logger:     logger.With(zap.String("session", id), zap.String("remote", remote)),
		writer:     newClientWriter(client, config.WriteTimeout, config.PingInterval),
		aggregator: aggregator,
		started:    time.Now(),
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Stats returns current counters
func (s *Session) Stats() Stats {
	st := Stats{
		ID:      s.id,
		Remote:  s.remote,
		Started: s.started,
		Chunks:  s.stats.chunks.Load(),
		Windows: s.stats.windows.Load(),
		Frames:  s.stats.frames.Load(),
		LastBPM: math.Float64frombits(s.stats.lastBPM.Load()),
	}
	if format, err := s.format.Resolve(); err == nil {
		st.Format = format.String()
	}
	return st
}

// Run drives the session until the first stage finishes, with or without an
// error. Both connections are then closed and Run waits for every stage
// before returning the first stage's result. Cancelling ctx ends the session
// with ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var (
		once       sync.Once
		first      error
		firstStage string
	)
	stage := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			err := fn(gctx)
			once.Do(func() {
				first, firstStage = err, name
			})
			cancel()
			return err
		})
	}

	pcm := make(chan []byte, s.config.PCMCapacity)
	windows := make(chan []byte, s.config.WindowCapacity)

	s.logger.Info("session started")

	stage("writer", s.writer.run)
	stage("client_to_server", s.clientToServer)
	stage("server_to_client", func(ctx context.Context) error {
		return s.serverToClient(ctx, pcm)
	})
	stage("aggregator", func(ctx context.Context) error {
		return s.aggregator.Run(ctx, pcm, windows)
	})
	stage("analysis", func(ctx context.Context) error {
		return s.analyzeWindows(ctx, windows)
	})

	<-gctx.Done()

	// Unblock the socket reads; both relays observe the closed connection.
	s.client.Close()
	s.upstream.CloseNow()

	g.Wait()

	result := first
	if parent.Err() != nil && (result == nil || errors.Is(result, context.Canceled)) {
		result = parent.Err()
	}

	fields := []zap.Field{
		zap.String("stage", firstStage),
		zap.String("outcome", Outcome(result)),
		zap.Int64("chunks", s.stats.chunks.Load()),
		zap.Int64("windows", s.stats.windows.Load()),
		zap.Int64("frames", s.stats.frames.Load()),
		zap.Duration("duration", time.Since(s.started)),
	}
	if result != nil {
		s.logger.Warn("session ended", append(fields, zap.Error(result))...)
	} else {
		s.logger.Info("session ended", fields...)
	}

	return result
}
