package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the research pipeline.
type Metrics struct {
	RunsStarted       prometheus.Counter
	RunsCompleted     prometheus.Counter
	RunsFailed        prometheus.Counter
	RunDuration       prometheus.Histogram
	RunIterations     prometheus.Histogram
	CoverageScore     prometheus.Histogram
	EvidenceCollected prometheus.Counter
}

// NewMetrics registers the pipeline collectors on reg (defaulting to the
// global registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scour_runs_started_total",
			Help: "Research runs accepted for execution.",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scour_runs_completed_total",
			Help: "Research runs that reached completed.",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scour_runs_failed_total",
			Help: "Research runs that reached failed.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scour_run_duration_seconds",
			Help:    "Wall-clock duration of completed runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RunIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scour_run_iterations",
			Help:    "Collection rounds executed per run.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		CoverageScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scour_coverage_score",
			Help:    "Coverage scores reported by the judge.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		EvidenceCollected: factory.NewCounter(prometheus.CounterOpts{
			Name: "scour_evidence_collected_total",
			Help: "Evidence sources persisted across all runs.",
		}),
	}
}
