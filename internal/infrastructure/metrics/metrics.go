package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the lesson service
type Metrics struct {
	// grading
	Validations       *prometheus.CounterVec
	Completions       prometheus.Counter
	SandboxDuration   *prometheus.HistogramVec
	SandboxRejections prometheus.Counter
	SandboxInFlight   prometheus.Gauge

	// persistence
	ProgressErrors *prometheus.CounterVec

	// transport
	HTTPDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics, later calls return the
// same instance
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			Validations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "roundy_validations_total",
					Help: "Graded submissions by outcome",
				},
				[]string{"outcome"},
			),
			Completions: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "roundy_lesson_completions_total",
					Help: "First time lesson completions",
				},
			),
			SandboxDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "roundy_sandbox_duration_seconds",
					Help:    "Wall clock time spent running a submission",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
				},
				[]string{"timed_out"},
			),
			SandboxRejections: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "roundy_sandbox_rejections_total",
					Help: "Submissions rejected because no isolate was available",
				},
			),
			SandboxInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "roundy_sandbox_in_flight",
					Help: "Isolates currently running",
				},
			),
			ProgressErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "roundy_progress_errors_total",
					Help: "Failed progress store operations",
				},
				[]string{"operation"},
			),
			HTTPDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "roundy_http_request_duration_seconds",
					Help:    "HTTP request latency by route and status class",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route", "status"},
			),
		}
	})
	return sharedMetrics
}
