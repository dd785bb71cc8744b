package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded for inbound messages that never reach the engine.
const (
	ReasonMalformed = "malformed"
	ReasonMismatch  = "correlation_mismatch"
	ReasonForeign   = "foreign"
)

// Metrics holds Prometheus metrics for consent acquisition.
type Metrics struct {
	Resolutions  *prometheus.CounterVec
	Unrecognized *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	Deactivated  *prometheus.CounterVec
}

// New registers consent metrics on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers consent metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so runs do not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cmpbridge_consent_resolutions_total",
			Help: "Total number of consent requests resolved, by regime and winning retriever",
		}, []string{"regime", "source"}),
		Unrecognized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cmpbridge_consent_unrecognized_payloads_total",
			Help: "Total number of CMP payloads that could not be interpreted",
		}, []string{"regime"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cmpbridge_consent_dropped_messages_total",
			Help: "Total number of inbound frame messages dropped before reaching the engine",
		}, []string{"regime", "reason"}),
		Deactivated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cmpbridge_consent_retrievers_deactivated_total",
			Help: "Total number of retrievers deactivated by resolution, removal or cleanup",
		}, []string{"regime"}),
	}
}

// IncResolution records a resolution won by source.
func (m *Metrics) IncResolution(regime, source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(regime, source).Inc()
}

// IncUnrecognized records a payload the data model rejected.
func (m *Metrics) IncUnrecognized(regime string) {
	if m == nil {
		return
	}
	m.Unrecognized.WithLabelValues(regime).Inc()
}

// IncDropped records a dropped inbound message.
func (m *Metrics) IncDropped(regime, reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(regime, reason).Inc()
}

// AddDeactivated records n retriever deactivations.
func (m *Metrics) AddDeactivated(regime string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deactivated.WithLabelValues(regime).Add(float64(n))
}
