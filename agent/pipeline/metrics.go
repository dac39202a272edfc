package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives run and stage-attempt observations.
type Metrics interface {
	ObserveRun(pipeline string, status Status)
	ObserveAttempt(pipeline, stage, outcome string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, Status)                           {}
func (noopMetrics) ObserveAttempt(string, string, string, time.Duration) {}

type PrometheusMetrics struct {
	runs     *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the pipeline collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Completed pipeline runs by terminal status.",
			},
			[]string{"pipeline", "status"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_attempts_total",
				Help: "Stage attempts by outcome (succeeded or error kind).",
			},
			[]string{"pipeline", "stage", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of a single stage attempt.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"pipeline", "stage"},
		),
	}

	for _, c := range []prometheus.Collector{m.runs, m.attempts, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) ObserveRun(pipeline string, status Status) {
	m.runs.WithLabelValues(pipeline, string(status)).Inc()
}

func (m *PrometheusMetrics) ObserveAttempt(pipeline, stage, outcome string, d time.Duration) {
	m.attempts.WithLabelValues(pipeline, stage, outcome).Inc()
	m.duration.WithLabelValues(pipeline, stage).Observe(d.Seconds())
}
