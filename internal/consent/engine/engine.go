// Package engine owns the resolution of one consent request: the retrievers
// racing to answer it, the single deferred result, and their teardown.
package engine

import (
	"context"
	"sync"

	"cmpbridge/internal/consent/models"
	"cmpbridge/internal/consent/observability"
	dErrors "cmpbridge/pkg/domain-errors"
	"cmpbridge/pkg/platform/sentinel"
)

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Retriever

// Retriever is one channel for obtaining a raw consent payload.
// Activate must be idempotent; Deactivate must be safe to call more than once.
type Retriever interface {
	ID() string
	Activate()
	Deactivate()
}

// State is the engine's lifecycle position.
type State string

const (
	StateInit     State = "init"
	StateActive   State = "active"
	StateResolved State = "resolved"
	StateTornDown State = "torn_down"
)

// Engine resolves a consent request exactly once. The first retriever whose
// payload the data model recognizes wins; every later Resolve is a no-op.
type Engine struct {
	model *models.DataModel
	diag  *observability.Diagnostics

	mu         sync.Mutex
	state      State
	value      models.Snapshot
	retrievers []Retriever
	done       chan struct{}
	closeDone  sync.Once
}

// New creates an engine whose value starts at the model defaults.
func New(model *models.DataModel, diag *observability.Diagnostics) (*Engine, error) {
	if model == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "data model is required")
	}
	return &Engine{
		model: model,
		diag:  diag,
		state: StateInit,
		value: model.Defaults(),
		done:  make(chan struct{}),
	}, nil
}

// Add registers r and activates it. Retrievers added after resolution or
// teardown are deactivated immediately instead.
func (e *Engine) Add(r Retriever) {
	if r == nil {
		return
	}
	e.mu.Lock()
	switch e.state {
	case StateResolved, StateTornDown:
		e.mu.Unlock()
		r.Deactivate()
		return
	}
	e.state = StateActive
	e.retrievers = append(e.retrievers, r)
	e.mu.Unlock()

	r.Activate()
}

// Remove deactivates and discards the retriever registered under id.
// It reports whether one was found.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	var removed Retriever
	for i, r := range e.retrievers {
		if r.ID() == id {
			removed = r
			e.retrievers = append(e.retrievers[:i:i], e.retrievers[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if removed == nil {
		return false
	}
	removed.Deactivate()
	e.diag.Deactivated(observability.ActionRemoved, 1)
	return true
}

// Resolve interprets raw on behalf of source. The first recognized payload
// stores the snapshot, releases waiters and deactivates every registered
// retriever; anything else is a no-op. It reports whether this call resolved.
func (e *Engine) Resolve(source string, raw any) bool {
	snap, err := e.model.Interpret(raw)
	if err != nil {
		e.diag.Unrecognized(source, raw)
		return false
	}

	e.mu.Lock()
	if e.state == StateResolved || e.state == StateTornDown {
		e.mu.Unlock()
		return false
	}
	e.state = StateResolved
	e.value = snap.WithSource(source)
	retired := e.retrievers
	e.retrievers = nil
	e.mu.Unlock()

	e.closeDone.Do(func() { close(e.done) })
	e.diag.Resolved(source)
	for _, r := range retired {
		r.Deactivate()
	}
	e.diag.Deactivated(observability.ActionResolved, len(retired))
	return true
}

// Cleanup deactivates every registered retriever whatever the state. Before
// resolution it moves the engine to torn-down, which releases waiters without
// a value. Repeated calls are safe.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	if e.state != StateResolved {
		e.state = StateTornDown
	}
	retired := e.retrievers
	e.retrievers = nil
	e.mu.Unlock()

	e.closeDone.Do(func() { close(e.done) })
	for _, r := range retired {
		r.Deactivate()
	}
	e.diag.Deactivated(observability.ActionCleanup, len(retired))
}

// Snapshot returns a copy of the current value: the defaults until
// resolution. Callers may modify the copy freely.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value.Clone()
}

// Obtained reports whether the request has been resolved. Once true it never
// reverts.
func (e *Engine) Obtained() bool {
	return e.State() == StateResolved
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done is closed on resolution or teardown, whichever comes first.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the request resolves, the engine is torn down, or ctx
// ends. It always returns the current snapshot; the error is nil only when
// consent was obtained.
//
// Errors: CodeConsentUnavailable wrapping sentinel.ErrInvalidState after
// teardown, CodeTimeout wrapping the context error when ctx ends first.
func (e *Engine) Wait(ctx context.Context) (models.Snapshot, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		if e.Obtained() {
			return e.Snapshot(), nil
		}
		return e.Snapshot(), dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "consent not obtained before deadline")
	}
	if !e.Obtained() {
		return e.Snapshot(), dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConsentUnavailable, "consent request torn down before resolution")
	}
	return e.Snapshot(), nil
}

// Active returns the ids of the retrievers still registered, in order.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.retrievers))
	for _, r := range e.retrievers {
		ids = append(ids, r.ID())
	}
	return ids
}
