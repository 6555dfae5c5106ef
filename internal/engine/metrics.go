package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCompleted = "completed"
	outcomeInvalid   = "invalid"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"
)

type Metrics struct {
	runs         *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	skippedLines prometheus.Counter
	activeRuns   prometheus.Gauge
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_runs_total",
				Help: "Load test runs by driver and outcome",
			},
			[]string{"driver", "outcome"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_driver_fallbacks_total",
				Help: "Runs that fell back to the synthetic driver, by reason",
			},
			[]string{"reason"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loadtest_run_duration_seconds",
				Help:    "Wall time of completed runs",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"driver"},
		),
		skippedLines: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "loadtest_stream_skipped_lines_total",
				Help: "Malformed measurement lines skipped while aggregating",
			},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "loadtest_active_runs",
				Help: "Runs currently executing",
			},
		),
	}
}
