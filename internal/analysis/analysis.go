// ABOUTME: Analysis capability used by the session pipeline
// ABOUTME: Defines the Analyzer interface and the default tempo estimator
package analysis

import (
	"context"
	"math"
)

// Analyzer turns a window of mono samples into a single scalar result.
type Analyzer interface {
	Analyze(ctx context.Context, samples []float32, sampleRate int) (float64, error)
}

// Func adapts a plain function to the Analyzer interface.
type Func func(ctx context.Context, samples []float32, sampleRate int) (float64, error)

// Analyze calls f.
func (f Func) Analyze(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
	return f(ctx, samples, sampleRate)
}

const (
	defaultFrameSize = 1024
	defaultHopSize   = 512
	defaultMinBPM    = 60.0
	defaultMaxBPM    = 200.0
	defaultPriorBPM  = 120.0

	// silenceThreshold is the RMS below which a window is treated as silent
	silenceThreshold = 1e-4
)

// TempoEstimator estimates beats per minute from an energy-flux onset
// envelope. The envelope is autocorrelated over the lag range covering
// MinBPM..MaxBPM and the strongest lag, weighted by a log-normal prior
// around PriorBPM, wins.
type TempoEstimator struct {
	FrameSize int
	HopSize   int
	MinBPM    float64
	MaxBPM    float64
	PriorBPM  float64
}

// NewTempoEstimator returns an estimator with the default parameters.
func NewTempoEstimator() *TempoEstimator {
	return &TempoEstimator{
		FrameSize: defaultFrameSize,
		HopSize:   defaultHopSize,
		MinBPM:    defaultMinBPM,
		MaxBPM:    defaultMaxBPM,
		PriorBPM:  defaultPriorBPM,
	}
}

// Analyze returns the estimated tempo in BPM, or 0 when the window is silent
// or too short to hold two beats at MinBPM.
func (e *TempoEstimator) Analyze(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
	if sampleRate <= 0 || len(samples) < e.FrameSize {
		return 0, nil
	}
	if rms(samples) < silenceThreshold {
		return 0, nil
	}

	envelope := e.onsetEnvelope(samples)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	framesPerSecond := float64(sampleRate) / float64(e.HopSize)
	minLag := int(math.Floor(60 * framesPerSecond / e.MaxBPM))
	maxLag := int(math.Ceil(60 * framesPerSecond / e.MinBPM))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(envelope)/2 {
		return 0, nil
	}

	scores := make([]float64, maxLag+2)
	best, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag+1 && lag < len(envelope); lag++ {
		var sum float64
		for i := 0; i+lag < len(envelope); i++ {
			sum += envelope[i] * envelope[i+lag]
		}
		scores[lag] = sum / float64(len(envelope)-lag)
	}
	for lag := minLag; lag <= maxLag; lag++ {
		bpm := 60 * framesPerSecond / float64(lag)
		weighted := scores[lag] * e.prior(bpm)
		if weighted > bestScore {
			best, bestScore = lag, weighted
		}
	}
	if best == 0 {
		return 0, nil
	}

	// Parabolic interpolation around the peak for sub-frame resolution
	lag := float64(best)
	if best > minLag && best < maxLag {
		a, b, c := scores[best-1], scores[best], scores[best+1]
		if denom := a - 2*b + c; denom != 0 {
			offset := 0.5 * (a - c) / denom
			if math.Abs(offset) < 1 {
				lag += offset
			}
		}
	}

	return 60 * framesPerSecond / lag, nil
}

// onsetEnvelope computes half-wave rectified frame energy differences with
// the mean removed.
func (e *TempoEstimator) onsetEnvelope(samples []float32) []float64 {
	frames := (len(samples)-e.FrameSize)/e.HopSize + 1
	energy := make([]float64, frames)
	for f := 0; f < frames; f++ {
		start := f * e.HopSize
		var sum float64
		for _, s := range samples[start : start+e.FrameSize] {
			sum += float64(s) * float64(s)
		}
		energy[f] = math.Log1p(sum)
	}

	envelope := make([]float64, frames)
	var mean float64
	for f := 1; f < frames; f++ {
		if d := energy[f] - energy[f-1]; d > 0 {
			envelope[f] = d
		}
		mean += envelope[f]
	}
	mean /= float64(frames)
	for f := range envelope {
		envelope[f] -= mean
	}
	return envelope
}

// prior weights a candidate tempo by a log-normal curve one octave wide.
func (e *TempoEstimator) prior(bpm float64) float64 {
	if e.PriorBPM <= 0 {
		return 1
	}
	octaves := math.Log2(bpm / e.PriorBPM)
	return math.Exp(-0.5 * octaves * octaves)
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
