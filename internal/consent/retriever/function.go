package retriever

import (
	"sync"
	"time"

	"cmpbridge/internal/consent/observability"
	"cmpbridge/internal/consent/ports"
)

// FuncConfig configures a function-call retriever.
type FuncConfig struct {
	ID        string
	Command   string
	Parameter any
	Args      ArgsFunc
	// PollInterval re-invokes the call until deactivated when positive.
	PollInterval time.Duration
	// Accept filters successful results before they reach the resolver.
	Accept func(result any) bool
	// OnAccept runs once per accepted result, before it is resolved.
	OnAccept func(result any)
	// OnDeactivate runs once on deactivation if the function was found.
	OnDeactivate func(fn ports.GlobalFunc)
}

// Func obtains consent by calling a CMP function. The function comes either
// from a host global (NewWindowFunc) or directly from the publisher (NewCustomFunc).
type Func struct {
	cfg      FuncConfig
	lookup   func() (ports.GlobalFunc, bool)
	host     ports.Host
	resolver Resolver
	diag     *observability.Diagnostics

	mu     sync.Mutex
	looked bool
	fn     ports.GlobalFunc
	timer  *ports.Registration
	closed bool
}

// NewWindowFunc calls the global named name on the host window.
func NewWindowFunc(host ports.Host, name string, cfg FuncConfig, resolver Resolver, diag *observability.Diagnostics) *Func {
	return &Func{
		cfg:      withDefaults(cfg),
		lookup:   func() (ports.GlobalFunc, bool) { return host.ResolveGlobal(name) },
		host:     host,
		resolver: resolver,
		diag:     diag,
	}
}

// NewCustomFunc calls fn directly. Custom functions are never polled.
func NewCustomFunc(fn ports.GlobalFunc, cfg FuncConfig, resolver Resolver, diag *observability.Diagnostics) *Func {
	cfg.PollInterval = 0
	return &Func{
		cfg:      withDefaults(cfg),
		lookup:   func() (ports.GlobalFunc, bool) { return fn, fn != nil },
		resolver: resolver,
		diag:     diag,
	}
}

func withDefaults(cfg FuncConfig) FuncConfig {
	if cfg.Args == nil {
		cfg.Args = PositionalArgs
	}
	return cfg
}

// ID implements engine.Retriever.
func (f *Func) ID() string {
	return f.cfg.ID
}

// Activate calls the function once. The first activation that finds the
// function also starts the poll timer when one is configured. A missing
// function leaves the retriever inert for good.
func (f *Func) Activate() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if !f.looked {
		f.looked = true
		f.fn, _ = f.lookup()
	}
	fn := f.fn
	startTimer := fn != nil && f.cfg.PollInterval > 0 && f.timer == nil && f.host != nil
	if startTimer {
		f.timer = f.host.Every(f.cfg.PollInterval, f.poll)
	}
	f.mu.Unlock()

	if fn == nil {
		return
	}
	f.call(fn)
}

func (f *Func) poll() {
	f.mu.Lock()
	fn, closed := f.fn, f.closed
	f.mu.Unlock()
	if closed || fn == nil {
		return
	}
	f.call(fn)
}

func (f *Func) call(fn ports.GlobalFunc) {
	invoke(f.diag, f.cfg.ID, fn, f.cfg.Args(f.cfg.Command, f.cfg.Parameter, f.callback))
}

// callback treats a falsy success or a missing result as "not yet available".
func (f *Func) callback(result any, success bool) {
	if !success || result == nil {
		return
	}
	if f.isClosed() {
		return
	}
	if f.cfg.Accept != nil && !f.cfg.Accept(result) {
		return
	}
	if f.cfg.OnAccept != nil {
		f.cfg.OnAccept(result)
	}
	f.resolver.Resolve(f.cfg.ID, result)
}

func (f *Func) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Deactivate stops polling and makes the retriever permanently inert.
func (f *Func) Deactivate() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	timer, fn := f.timer, f.fn
	f.timer = nil
	f.mu.Unlock()

	timer.Cancel()
	if fn != nil && f.cfg.OnDeactivate != nil {
		f.cfg.OnDeactivate(fn)
	}
}
