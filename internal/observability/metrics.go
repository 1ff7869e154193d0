package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics publishes segmentation run counters and timings to a
// prometheus registry.
type RunMetrics struct {
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	segments   prometheus.Counter
	exceptions *prometheus.CounterVec
	voters     prometheus.Counter
}

// NewRunMetrics constructs and registers the run metric set. Passing
// prometheus.DefaultRegisterer wires the process-global registry; tests
// supply their own.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	m := &RunMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canvasscore",
			Name:      "runs_total",
			Help:      "Segmentation runs by terminal status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "canvasscore",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of segmentation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canvasscore",
			Name:      "segments_created_total",
			Help:      "Segments persisted across all runs.",
		}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canvasscore",
			Name:      "exceptions_total",
			Help:      "Exception records raised across all runs.",
		}, []string{"type"}),
		voters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "canvasscore",
			Name:      "voters_covered_total",
			Help:      "Voters covered by persisted segments.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.segments, m.exceptions, m.voters)
	return m
}

// ObserveRun records one finished run.
func (m *RunMetrics) ObserveRun(status string, d time.Duration) {
	m.runs.WithLabelValues(status).Inc()
	m.duration.Observe(d.Seconds())
}

// AddSegments counts persisted segments.
func (m *RunMetrics) AddSegments(n int) {
	m.segments.Add(float64(n))
}

// AddExceptions counts raised exceptions by type.
func (m *RunMetrics) AddExceptions(exceptionType string, n int) {
	m.exceptions.WithLabelValues(exceptionType).Add(float64(n))
}

// AddVotersCovered counts voters placed into segments.
func (m *RunMetrics) AddVotersCovered(n int) {
	m.voters.Add(float64(n))
}
