package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.IncResolution("tcfv2", "tcfv2.window")
	m.IncResolution("tcfv2", "tcfv2.window")
	m.IncDropped("usp", ReasonMismatch)
	m.IncUnrecognized("gdpr")
	m.AddDeactivated("tcfv2", 3)
	m.AddDeactivated("tcfv2", 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Resolutions.WithLabelValues("tcfv2", "tcfv2.window")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dropped.WithLabelValues("usp", ReasonMismatch)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Unrecognized.WithLabelValues("gdpr")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Deactivated.WithLabelValues("tcfv2")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncResolution("a", "b")
		m.IncUnrecognized("a")
		m.IncDropped("a", ReasonForeign)
		m.AddDeactivated("a", 1)
	})
}
