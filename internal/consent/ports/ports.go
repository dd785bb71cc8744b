// Package ports declares the host capabilities the consent engine depends on.
// A host is whatever owns the page: a real browser driven over CDP, or the
// in-memory page used in tests. The engine never evaluates code or walks a DOM;
// it only asks the host for these capabilities.
package ports

import (
	"sync"
	"time"
)

// Callback receives a CMP response. result is nil when the CMP passed nothing.
type Callback func(result any, success bool)

// GlobalFunc is a function exposed by a CMP on the window. Arguments are passed
// positionally; a Callback argument is invoked by the CMP, possibly more than
// once and possibly before the call returns.
type GlobalFunc func(args ...any)

// Window is an opaque handle to a browsing context. Handles are only obtained
// from a Host and are not retained beyond a single message round-trip.
type Window interface {
	// Parent returns the parent context, or nil for the top window.
	Parent() Window
	// Frames returns the child contexts in document order.
	Frames() []Window
	// HasFrame reports whether a child frame with the given name exists.
	// Inaccessible contexts report false.
	HasFrame(name string) bool
	// PostMessage delivers data to the context asynchronously.
	PostMessage(data any)
}

// MessageEvent is an inbound cross-frame message as seen by the current window.
type MessageEvent struct {
	Data   any
	Source Window
}

// Host is the page-integration layer.
type Host interface {
	// Window returns the context the engine runs in.
	Window() Window
	// ResolveGlobal looks up a callable global by name.
	ResolveGlobal(name string) (GlobalFunc, bool)
	// Listen registers a message handler on the current window.
	Listen(handler func(MessageEvent)) *Registration
	// Every runs fn repeatedly at interval until the registration is cancelled.
	Every(interval time.Duration, fn func()) *Registration
}

// Registration is a cancellation token for a timer or listener. Cancel is
// idempotent and safe on a nil Registration.
type Registration struct {
	once   sync.Once
	cancel func()
}

// NewRegistration wraps cancel so it runs at most once.
func NewRegistration(cancel func()) *Registration {
	return &Registration{cancel: cancel}
}

// Cancel releases the underlying resource.
func (r *Registration) Cancel() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}
