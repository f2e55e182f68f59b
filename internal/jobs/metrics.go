package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records job and target activity. A nil *Metrics records nothing.
type Metrics struct {
	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	inFlight  prometheus.Gauge
	duration  prometheus.Histogram
	targets   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slareport_jobs_submitted_total",
			Help: "number of report jobs accepted",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slareport_jobs_finished_total",
			Help: "number of report jobs that reached a terminal state, sorted by status",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slareport_jobs_in_flight",
			Help: "number of report jobs still processing",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slareport_job_duration_seconds",
			Help:    "wall time from submission to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slareport_target_evaluations_total",
			Help: "number of target evaluations, sorted by service type and status",
		}, []string{"service_type", "status"}),
	}
	reg.MustRegister(m.submitted, m.finished, m.inFlight, m.duration, m.targets)
	return m
}

func (m *Metrics) jobSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.inFlight.Inc()
}

func (m *Metrics) jobFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.finished.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTarget(serviceType, status string, _ time.Duration) {
	if m == nil {
		return
	}
	m.targets.WithLabelValues(serviceType, status).Inc()
}
