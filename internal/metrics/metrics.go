// ABOUTME: Prometheus instruments for the gateway
// ABOUTME: Package-level gauges, counters and histograms registered with the default registry
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beatgate_active_sessions",
		Help: "Number of relay sessions currently running",
	})
)

// Counters
var (
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatgate_sessions_total",
		Help: "Total relay sessions started",
	})
	SessionEndsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beatgate_session_ends_total",
		Help: "Total relay sessions ended by outcome",
	}, []string{"outcome"})
	UpstreamDialFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatgate_upstream_dial_failures_total",
		Help: "Total upstream connection attempts that failed",
	})
	ChunksReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatgate_chunks_received_total",
		Help: "Total binary PCM chunks received from upstream",
	})
	WindowsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatgate_windows_emitted_total",
		Help: "Total analysis windows emitted by the aggregator",
	})
	FramesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatgate_result_frames_written_total",
		Help: "Total result frames written to clients",
	})
)

// Histograms
var (
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beatgate_analysis_duration_ms",
		Help:    "Analyzer call duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)
