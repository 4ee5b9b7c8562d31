// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageHandlingSeconds is a histogram of extractor stage latencies
	StageHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluator_stage_handling_seconds",
			Help:    "Histogram of latency (seconds) of one extractor stage over one batch.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage", "code"},
	)

	// BatchRows is a histogram for tracking record batch sizes
	BatchRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluator_batch_rows",
			Help:    "Histogram of row counts per record batch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 4096},
		},
	)

	// InferenceLatencySeconds is a histogram for model invocation latency
	InferenceLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluator_inference_latency_seconds",
			Help:    "Histogram of model invocation latency (seconds) per batch.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"runtime", "model"},
	)

	// DefaultedFeatures counts feature values replaced by a filled default
	DefaultedFeatures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_defaulted_features_total",
			Help: "Number of missing feature values replaced by a default before inference.",
		},
		[]string{"model", "feature"},
	)

	// HealthStatus is a gauge indicating the health status of the worker
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evaluator_health_status",
			Help: "Health status of the worker (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordStageLatency records the latency of one stage call
func RecordStageLatency(stage, code string, seconds float64) {
	StageHandlingSeconds.WithLabelValues(stage, code).Observe(seconds)
}

// RecordBatchRows records the row count of a record batch
func RecordBatchRows(rows int) {
	BatchRows.Observe(float64(rows))
}

// RecordInferenceLatency records the latency of a model invocation
func RecordInferenceLatency(runtime, model string, seconds float64) {
	InferenceLatencySeconds.WithLabelValues(runtime, model).Observe(seconds)
}

// RecordDefaultedFeature counts one defaulted feature value
func RecordDefaultedFeature(model, feature string) {
	DefaultedFeatures.WithLabelValues(model, feature).Inc()
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
