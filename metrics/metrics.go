package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recommendation pipeline instrumentation. Every stage of a request reports
// its duration; degradations (fail-open, skipped enhancement, dropped ids)
// are counted by stage and reason.
var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_stage_duration_seconds",
			Help:    "Duration of recommendation pipeline stages in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	StageDegradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_stage_degradations_total",
			Help: "Pipeline stages that fell back to their degraded path",
		},
		[]string{"stage", "reason"},
	)

	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_llm_calls_total",
			Help: "LLM completion calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"}, // purpose: refine, rerank, health; outcome: ok, error, unparsable
	)

	RefineIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_refine_iterations",
			Help:    "Number of refinement iterations per request",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	ResultSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_result_size",
			Help:    "Number of recommendations returned per request",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
		[]string{"strategy"},
	)

	MetadataDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_metadata_dropped_total",
			Help: "Vector hits dropped because their menu item metadata could not be loaded",
		},
	)
)

func RecordStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func RecordDegradation(stage, reason string) {
	StageDegradations.WithLabelValues(stage, reason).Inc()
}

func RecordLLMCall(purpose, outcome string) {
	LLMCalls.WithLabelValues(purpose, outcome).Inc()
}
