// ABOUTME: Tests for the tempo estimator
// ABOUTME: Uses synthetic click tracks with a known tempo
package analysis

import (
	"context"
	"errors"
	"math"
	"testing"
)

// clickTrack returns mono samples with a short decaying burst on every beat
func clickTrack(bpm float64, sampleRate int, seconds float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float32, n)
	interval := 60 / bpm * float64(sampleRate)
	clickLen := sampleRate / 50

	for beat := 0.0; int(beat) < n; beat += interval {
		start := int(beat)
		for i := 0; i < clickLen && start+i < n; i++ {
			decay := math.Exp(-float64(i) / float64(clickLen) * 5)
			samples[start+i] = float32(0.8 * decay * math.Sin(2*math.Pi*1000*float64(i)/float64(sampleRate)))
		}
	}
	return samples
}

func TestTempoEstimatorClickTrack(t *testing.T) {
	tests := []struct {
		name string
		bpm  float64
	}{
		{"120 bpm", 120},
		{"100 bpm", 100},
	}

	estimator := NewTempoEstimator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := clickTrack(tt.bpm, 44100, 6)
			got, err := estimator.Analyze(context.Background(), samples, 44100)
			if err != nil {
				t.Fatalf("analyze failed: %v", err)
			}
			if math.Abs(got-tt.bpm) > 4 {
				t.Errorf("expected ~%.0f BPM, got %.2f", tt.bpm, got)
			}
		})
	}
}

func TestTempoEstimatorDegenerateInput(t *testing.T) {
	estimator := NewTempoEstimator()

	tests := []struct {
		name       string
		samples    []float32
		sampleRate int
	}{
		{"silence", make([]float32, 44100*4), 44100},
		{"too short", clickTrack(120, 44100, 0.5), 44100},
		{"empty", nil, 44100},
		{"zero sample rate", clickTrack(120, 44100, 4), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := estimator.Analyze(context.Background(), tt.samples, tt.sampleRate)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != 0 {
				t.Errorf("expected 0, got %v", got)
			}
		})
	}
}

func TestFuncAdapter(t *testing.T) {
	sentinel := errors.New("boom")
	var a Analyzer = Func(func(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
		if len(samples) == 0 {
			return 0, sentinel
		}
		return float64(sampleRate), nil
	})

	got, err := a.Analyze(context.Background(), []float32{1}, 8000)
	if err != nil || got != 8000 {
		t.Errorf("expected 8000, got %v (%v)", got, err)
	}
	if _, err := a.Analyze(context.Background(), nil, 8000); !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}
