// Package regime wires the consent engine to the published CMP APIs of each
// legal regime. A regime is a Definition value; an Adapter is one consent
// request against one page, resolved at most once for its lifetime.
package regime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cmpbridge/internal/consent/correlation"
	"cmpbridge/internal/consent/engine"
	"cmpbridge/internal/consent/metrics"
	"cmpbridge/internal/consent/models"
	"cmpbridge/internal/consent/observability"
	"cmpbridge/internal/consent/ports"
	"cmpbridge/internal/consent/retriever"
	dErrors "cmpbridge/pkg/domain-errors"
)

// Adapter acquires consent for one regime on one host.
type Adapter struct {
	def    Definition
	callID string
	engine *engine.Engine

	mu      sync.RWMutex
	applies *bool
}

type options struct {
	customFunc   ports.GlobalFunc
	pollInterval time.Duration
	maxDepth     int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	sampler      *observability.Sampler
	registry     *correlation.Registry
	applies      *bool
}

// Option configures an Adapter.
type Option func(*options)

// WithCustomFunc adds a publisher-supplied CMP function, tried first.
func WithCustomFunc(fn ports.GlobalFunc) Option {
	return func(o *options) {
		o.customFunc = fn
	}
}

// WithPollInterval re-invokes the window function at interval until resolved.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
	}
}

// WithMaxFrameDepth bounds the locator frame search.
func WithMaxFrameDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSampler controls how often dropped-message diagnostics are logged.
func WithSampler(s *observability.Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithRegistry shares a correlation registry between adapters.
func WithRegistry(r *correlation.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithApplies declares regime applicability up front, as SetApplies does later.
func WithApplies(applies bool) Option {
	return func(o *options) {
		o.applies = &applies
	}
}

// New builds an adapter and starts every channel the definition describes, in
// priority order: custom function, window function, frame message, and the
// event listener when the regime has one.
//
// Errors: CodeInvalidInput when host is nil or the definition is incomplete.
func New(host ports.Host, def Definition, opts ...Option) (*Adapter, error) {
	if host == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "host is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	model, err := def.DataModel()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "regime "+def.Name+": invalid data model")
	}

	o := options{maxDepth: retriever.DefaultMaxFrameDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = correlation.New()
	}

	diag := observability.NewDiagnostics(def.Name, o.logger, o.sampler, o.metrics)
	eng, err := engine.New(model, diag)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		def:     def,
		callID:  o.registry.NextID(),
		engine:  eng,
		applies: o.applies,
	}
	for _, r := range a.retrievers(host, o, diag) {
		eng.Add(r)
	}
	return a, nil
}

func (a *Adapter) retrievers(host ports.Host, o options, diag *observability.Diagnostics) []engine.Retriever {
	def := a.def
	args := retriever.PositionalArgs
	if def.VersionedCall {
		args = retriever.VersionedArgs(def.Version)
	}

	var out []engine.Retriever
	if o.customFunc != nil {
		out = append(out, retriever.NewCustomFunc(o.customFunc, retriever.FuncConfig{
			ID:        def.sourceID(SourceCustom),
			Command:   def.GetCommand,
			Parameter: def.Parameter,
			Args:      args,
		}, a.engine, diag))
	}
	out = append(out,
		retriever.NewWindowFunc(host, def.GlobalFunc, retriever.FuncConfig{
			ID:           def.sourceID(SourceWindow),
			Command:      def.GetCommand,
			Parameter:    def.Parameter,
			Args:         args,
			PollInterval: o.pollInterval,
		}, a.engine, diag),
		retriever.NewFrame(host, o.registry, retriever.FrameConfig{
			ID:          def.sourceID(SourceFrame),
			LocatorName: def.LocatorName,
			CallKey:     def.CallKey,
			ReturnKey:   def.ReturnKey,
			Command:     def.GetCommand,
			Parameter:   def.Parameter,
			Version:     def.Version,
			CallID:      a.callID,
			MaxDepth:    o.maxDepth,
		}, a.engine, diag),
	)
	if def.EventListener != nil {
		getID := def.sourceID(SourceWindow)
		out = append(out, retriever.NewEventListener(host, def.GlobalFunc, retriever.EventConfig{
			ID:      def.sourceID(SourceEvent),
			Command: def.EventListener.Command,
			Version: def.Version,
			OnFirstEvent: func() {
				a.engine.Remove(getID)
			},
		}, a.engine, diag))
	}
	return out
}

// Regime returns the regime name.
func (a *Adapter) Regime() string {
	return a.def.Name
}

// CallID returns the correlation id used on the frame channel.
func (a *Adapter) CallID() string {
	return a.callID
}

// GetConsent returns the current snapshot: defaults until resolution, then
// the resolved value, with any applicability override layered on top.
func (a *Adapter) GetConsent() models.Snapshot {
	return a.overlay(a.engine.Snapshot())
}

// HasObtainedConsent reports whether a CMP answered. It never reverts.
func (a *Adapter) HasObtainedConsent() bool {
	return a.engine.Obtained()
}

// SetApplies overrides the applies field, for publishers that declare regime
// applicability themselves.
func (a *Adapter) SetApplies(applies bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applies = &applies
}

// Done is closed on resolution or cleanup.
func (a *Adapter) Done() <-chan struct{} {
	return a.engine.Done()
}

// Wait blocks until consent is obtained, the adapter is cleaned up, or ctx
// ends. See engine.Engine.Wait for the errors.
func (a *Adapter) Wait(ctx context.Context) (models.Snapshot, error) {
	snap, err := a.engine.Wait(ctx)
	return a.overlay(snap), err
}

// RunCleanup stops every channel still running. Safe to call at any time.
func (a *Adapter) RunCleanup() {
	a.engine.Cleanup()
}

// ActiveRetrievers lists the channels still registered.
func (a *Adapter) ActiveRetrievers() []string {
	return a.engine.Active()
}

func (a *Adapter) overlay(s models.Snapshot) models.Snapshot {
	a.mu.RLock()
	applies := a.applies
	a.mu.RUnlock()
	if applies == nil {
		return s
	}
	return s.WithApplies(*applies)
}
