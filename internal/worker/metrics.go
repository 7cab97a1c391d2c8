package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the worker's prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reserved     prometheus.Counter
	dispositions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reserved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ayl_jobs_reserved_total",
			Help: "Jobs reserved from the queue backend.",
		}),
		dispositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ayl_dispositions_total",
			Help: "Job dispositions by action and outcome.",
		}, []string{"action", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ayl_handler_duration_seconds",
			Help:    "Handler execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.reserved, m.dispositions, m.duration)
	}
	return m
}

func (m *Metrics) observeReserved() {
	if m == nil {
		return
	}
	m.reserved.Inc()
}

func (m *Metrics) observeDisposition(action Disposition, kind OutcomeKind) {
	if m == nil {
		return
	}
	a := string(action)
	if a == "" {
		a = "none"
	}
	m.dispositions.WithLabelValues(a, kind.String()).Inc()
}

func (m *Metrics) observeExecution(kind OutcomeKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}
