package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts pipeline runs by stage outcome.
	// Labels: stage (diarize/recognize/align/pipeline), status (success/error)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_requests_total",
			Help: "Total number of pipeline stage executions by outcome",
		},
		[]string{"stage", "status"},
	)

	// ErrorsTotal counts classified pipeline failures.
	// Labels: stage, error_code (VALIDATION_FAILED/DIARIZATION_FAILED/...)
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speech_errors_total",
			Help: "Total number of pipeline errors by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	// ProvidersReady reflects readiness of both inference providers
	// (0=at least one unhealthy, 1=all healthy).
	ProvidersReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "speech_providers_ready",
			Help: "Inference provider readiness (0=degraded, 1=all healthy)",
		},
	)

	// StageDuration observes wall time per pipeline stage in seconds.
	// Buckets cover sub-second alignment up to multi-minute recognition.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speech_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
)

// RecordStage records one stage execution outcome.
func RecordStage(stage string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(stage, status).Inc()
}

// RecordError records a classified stage failure.
func RecordError(stage, errorCode string) {
	ErrorsTotal.WithLabelValues(stage, errorCode).Inc()
}

// SetProvidersReady publishes the aggregate provider readiness.
func SetProvidersReady(ready bool) {
	if ready {
		ProvidersReady.Set(1)
	} else {
		ProvidersReady.Set(0)
	}
}

// RecordDuration records one stage's wall time.
func RecordDuration(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}
