package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe outcomes.
const (
	OutcomeObtained = "obtained"
	OutcomeNone     = "none"
	OutcomeError    = "error"
)

// Metrics holds the probe service's Prometheus metrics.
type Metrics struct {
	ProbeDuration *prometheus.HistogramVec
	ProbesShared  prometheus.Counter
	Throttled     prometheus.Counter
}

// New creates and registers probe metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProbeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cmpbridge_probe_duration_seconds",
			Help:    "Duration of page probes, by outcome",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"outcome"}),
		ProbesShared: f.NewCounter(prometheus.CounterOpts{
			Name: "cmpbridge_probes_shared_total",
			Help: "Total number of probe requests answered by an in-flight run for the same page",
		}),
		Throttled: f.NewCounter(prometheus.CounterOpts{
			Name: "cmpbridge_probe_requests_throttled_total",
			Help: "Total number of probe requests rejected by the rate limiter",
		}),
	}
}

// ObserveProbe records a probe run.
func (m *Metrics) ObserveProbe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProbeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncShared records a request that joined an in-flight probe.
func (m *Metrics) IncShared() {
	if m == nil {
		return
	}
	m.ProbesShared.Inc()
}

// IncThrottled records a rejected request.
func (m *Metrics) IncThrottled() {
	if m == nil {
		return
	}
	m.Throttled.Inc()
}
