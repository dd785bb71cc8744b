// Package observability provides diagnostic logging for consent acquisition.
// Nothing here is an error path: every event reported is absorbed locally.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"cmpbridge/internal/consent/metrics"
)

// Diagnostic actions, also used as sampler keys.
const (
	ActionUnrecognized = "payload_unrecognized"
	ActionDropped      = "message_dropped"
	ActionRecovered    = "cmp_call_panicked"
	ActionResolved     = "consent_resolved"
	ActionRemoved      = "retriever_removed"
	ActionCleanup      = "consent_cleanup"
)

// Diagnostics reports runtime retrieval conditions for one regime. A nil
// *Diagnostics discards everything.
type Diagnostics struct {
	regime  string
	logger  *slog.Logger
	sampler *Sampler
	metrics *metrics.Metrics
}

// NewDiagnostics builds diagnostics for regime. logger, sampler and m may be nil.
// Without a sampler dropped-message diagnostics are logged at 1%.
func NewDiagnostics(regime string, logger *slog.Logger, sampler *Sampler, m *metrics.Metrics) *Diagnostics {
	if sampler == nil {
		sampler = NewSampler(1)
		sampler.SetRate(ActionDropped, 0.01)
	}
	return &Diagnostics{regime: regime, logger: logger, sampler: sampler, metrics: m}
}

// Regime returns the regime these diagnostics are labelled with.
func (d *Diagnostics) Regime() string {
	if d == nil {
		return ""
	}
	return d.regime
}

// Unrecognized records a payload the data model could not interpret.
func (d *Diagnostics) Unrecognized(source string, payload any) {
	if d == nil {
		return
	}
	d.metrics.IncUnrecognized(d.regime)
	d.debug(ActionUnrecognized, "source", source, "payload_type", fmt.Sprintf("%T", payload))
}

// Dropped records an inbound message that never reached the engine.
// Correlation mismatches are expected traffic and only ever logged at debug.
func (d *Diagnostics) Dropped(source, reason string) {
	if d == nil {
		return
	}
	d.metrics.IncDropped(d.regime, reason)
	d.debug(ActionDropped, "source", source, "reason", reason)
}

// Recovered records a CMP function that panicked while being called.
func (d *Diagnostics) Recovered(source string, v any) {
	if d == nil {
		return
	}
	if d.logger != nil {
		d.logger.Warn(ActionRecovered, "regime", d.regime, "source", source, "panic", fmt.Sprint(v))
	}
}

// Resolved records the retriever that won the race.
func (d *Diagnostics) Resolved(source string) {
	if d == nil {
		return
	}
	d.metrics.IncResolution(d.regime, source)
	if d.logger != nil {
		d.logger.Info(ActionResolved, "regime", d.regime, "source", source)
	}
}

// Deactivated records n retriever deactivations caused by action.
func (d *Diagnostics) Deactivated(action string, n int) {
	if d == nil {
		return
	}
	d.metrics.AddDeactivated(d.regime, n)
	d.debug(action, "retrievers", n)
}

func (d *Diagnostics) debug(action string, args ...any) {
	if d.logger == nil || !d.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if !d.sampler.ShouldSample(action) {
		return
	}
	d.logger.Debug(action, append([]any{"regime", d.regime}, args...)...)
}
