package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesift_frames_captured_total",
		Help: "Frames fetched and decoded by the recorder, by source",
	}, []string{"source"})

	FetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesift_fetch_failures_total",
		Help: "Fetches that exhausted their retries, by source",
	}, []string{"source"})

	FetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesift_fetch_retries_total",
		Help: "Total number of fetch retries",
	}, []string{"attempt"})

	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesift_decode_errors_total",
		Help: "Frames skipped because they could not be decoded",
	}, []string{"stage"})

	KeyframesSelectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesift_keyframes_selected_total",
		Help: "Keyframes handed to the caller, by analysis mode",
	}, []string{"mode"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framesift_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	ActiveRecorders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framesift_active_recorders",
		Help: "Number of capture loops currently running",
	})

	ExposeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesift_expose_failures_total",
		Help: "Key frame exposures that failed",
	})

	ExposedFramesSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesift_exposed_frames_swept_total",
		Help: "Exposed key frames removed by the retention sweep, by sink",
	}, []string{"sink"})
)
