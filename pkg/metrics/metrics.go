// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal tracks processed turns by role.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Total turns appended to the conversation log",
		},
		[]string{"role"},
	)

	// TurnDuration tracks end-to-end turn processing duration by outcome.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_turn_duration_seconds",
			Help:    "End-to-end turn processing duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// CompletionDuration tracks LLM completion duration.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// CompletionRetries tracks retry attempts against the LLM provider.
	CompletionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_completion_retries_total",
			Help: "Total LLM completion retry attempts",
		},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// TranscriptionDuration tracks voice transcription duration.
	TranscriptionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcription_duration_seconds",
			Help:    "Voice transcription duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)

	// KnowledgeReloads tracks knowledge document reload attempts.
	KnowledgeReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_reloads_total",
			Help: "Knowledge document reload attempts",
		},
		[]string{"status"},
	)

	// KnowledgeSnapshotBytes tracks the size of the current snapshot.
	KnowledgeSnapshotBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "knowledge_snapshot_bytes",
			Help: "Size of the current knowledge snapshot in bytes",
		},
	)

	// OutboundPublished tracks replies published to the outbound bus.
	OutboundPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_published_total",
			Help: "Outbound replies published to the delivery bus",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompletion records metrics for an LLM completion.
func RecordCompletion(model, status string, duration float64, tokensIn, tokensOut int) {
	CompletionDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
