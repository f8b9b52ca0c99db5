// ABOUTME: Analysis and encoding stage of a session
// ABOUTME: Converts each window to samples, runs the analyzer and writes a result frame to the client
package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Resonate-Protocol/beatgate/internal/metrics"
	"github.com/Resonate-Protocol/beatgate/pkg/audio/decode"
	"github.com/Resonate-Protocol/beatgate/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// analyzeWindows processes windows in order until the channel closes.
func (s *Session) analyzeWindows(ctx context.Context, windows <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case window, ok := <-windows:
			if !ok {
				return nil
			}
			s.stats.windows.Add(1)
			metrics.WindowsEmittedTotal.Inc()
			if err := s.processWindow(ctx, window); err != nil {
				return err
			}
		}
	}
}

func (s *Session) processWindow(ctx context.Context, window []byte) error {
	format, err := s.format.Resolve()
	if err != nil {
		return err
	}

	decoder, err := decode.NewPCM(format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	samples, err := decoder.Decode(window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	mono := decode.Downmix(samples, format.Channels)

	start := time.Now()
	bpm, err := s.analyzer.Analyze(ctx, mono, format.SampleRate)
	elapsed := time.Since(start)
	metrics.AnalysisDuration.Observe(float64(elapsed.Milliseconds()))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("%w: analyzer returned %v", ErrAnalysis, bpm)
	}

	data, err := protocol.EncodeResult(protocol.ResultFrame{PCM: window, BPM: bpm})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	if err := s.writer.write(ctx, websocket.BinaryMessage, data); err != nil {
		return err
	}

	s.stats.frames.Add(1)
	s.stats.lastBPM.Store(math.Float64bits(bpm))
	metrics.FramesWrittenTotal.Inc()
	s.logger.Debug("result frame written",
		zap.Int("pcm_bytes", len(window)),
		zap.Float64("bpm", bpm),
		zap.Duration("analysis", elapsed))
	return nil
}
