// Package cdp implements the consent host over the Chrome DevTools Protocol.
// CMP code runs in the browser; calls, callbacks and messages cross the
// boundary through a small bridge object evaluated into the page.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"cmpbridge/internal/consent/ports"
)

// DefaultPumpInterval is how often queued bridge events are drained.
const DefaultPumpInterval = 25 * time.Millisecond

const callbackMarker = "__cmpbridgeCallback"

// Host is a ports.Host bound to one browser tab.
type Host struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	pump   time.Duration

	mu        sync.Mutex
	handlers  map[int]func(ports.MessageEvent)
	callbacks map[int]ports.Callback
	nextID    int

	wg sync.WaitGroup
}

type bridgeEvent struct {
	Kind    string `json:"kind"`
	ID      int    `json:"id"`
	Result  any    `json:"result"`
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Source  int    `json:"source"`
}

// newHost installs the bridge in the tab behind ctx and starts draining it.
func newHost(ctx context.Context, logger *slog.Logger, pump time.Duration) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pump <= 0 {
		pump = DefaultPumpInterval
	}
	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(bridgeScript, &ok)); err != nil {
		return nil, fmt.Errorf("install bridge: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Host{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		pump:      pump,
		handlers:  make(map[int]func(ports.MessageEvent)),
		callbacks: make(map[int]ports.Callback),
	}
	h.wg.Add(1)
	go h.run()
	return h, nil
}

// Close stops the pump and every timer and drops every bridge callback. The
// tab itself is owned by the caller.
func (h *Host) Close() {
	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	h.callbacks = nil
	h.handlers = map[int]func(ports.MessageEvent){}
	h.mu.Unlock()
}

func (h *Host) Window() ports.Window {
	return window{h: h, expr: "window"}
}

func (h *Host) ResolveGlobal(name string) (ports.GlobalFunc, bool) {
	var isFunc bool
	expr := fmt.Sprintf("typeof window[%s] === 'function'", quote(name))
	if err := h.eval(expr, &isFunc); err != nil || !isFunc {
		return nil, false
	}
	g := &global{h: h, name: name, slots: make(map[int]int)}
	return g.invoke, true
}

func (h *Host) Listen(handler func(ports.MessageEvent)) *ports.Registration {
	id := h.newID()
	h.mu.Lock()
	h.handlers[id] = handler
	h.mu.Unlock()

	return ports.NewRegistration(func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	})
}

func (h *Host) Every(interval time.Duration, fn func()) *ports.Registration {
	if interval <= 0 {
		return ports.NewRegistration(nil)
	}
	stop := make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-h.ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	return ports.NewRegistration(func() { close(stop) })
}

// global is one resolved page function. Every callback argument position
// owns a single bridge id, so repeated calls such as poll ticks replace the
// stored callback instead of adding one per call.
type global struct {
	h    *Host
	name string

	mu    sync.Mutex
	slots map[int]int
}

// invoke calls the page function. A throwing CMP surfaces as a panic, which
// retrievers recover.
func (g *global) invoke(args ...any) {
	encoded, err := json.Marshal(g.bind(args))
	if err != nil {
		panic(fmt.Errorf("encode arguments for %s: %w", g.name, err))
	}

	var res struct {
		Error string `json:"error"`
	}
	expr := fmt.Sprintf("window.__cmpbridge.call(%s, %s)", quote(g.name), encoded)
	if err := g.h.eval(expr, &res); err != nil {
		panic(fmt.Errorf("call %s: %w", g.name, err))
	}
	if res.Error != "" {
		panic(fmt.Errorf("%s threw: %s", g.name, res.Error))
	}
}

// bind swaps callback arguments for bridge markers.
func (g *global) bind(args []any) []any {
	wire := make([]any, len(args))
	for i, a := range args {
		cb, ok := a.(ports.Callback)
		if !ok {
			wire[i] = a
			continue
		}
		g.mu.Lock()
		id, ok := g.slots[i]
		if !ok {
			id = g.h.newID()
			g.slots[i] = id
		}
		g.mu.Unlock()
		g.h.setCallback(id, cb)
		wire[i] = map[string]int{callbackMarker: id}
	}
	return wire
}

func (h *Host) newID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	return id
}

func (h *Host) setCallback(id int, cb ports.Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.callbacks != nil {
		h.callbacks[id] = cb
	}
}

func (h *Host) run() {
	defer h.wg.Done()
	t := time.NewTicker(h.pump)
	defer t.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-t.C:
			h.drain()
		}
	}
}

func (h *Host) drain() {
	var events []bridgeEvent
	if err := h.eval("window.__cmpbridge ? window.__cmpbridge.drain() : []", &events); err != nil {
		if h.ctx.Err() == nil {
			h.logger.Debug("bridge drain failed", "error", err)
		}
		return
	}
	for _, ev := range events {
		switch ev.Kind {
		case "callback":
			h.mu.Lock()
			cb := h.callbacks[ev.ID]
			h.mu.Unlock()
			if cb != nil {
				cb(ev.Result, ev.Success)
			}
		case "message":
			msg := ports.MessageEvent{Data: ev.Data}
			if ev.Source >= 0 {
				msg.Source = window{h: h, expr: fmt.Sprintf("window.__cmpbridge.refs[%d]", ev.Source)}
			}
			for _, handler := range h.snapshotHandlers() {
				handler(msg)
			}
		}
	}
}

func (h *Host) snapshotHandlers() []func(ports.MessageEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := slices.Sorted(maps.Keys(h.handlers))
	out := make([]func(ports.MessageEvent), 0, len(ids))
	for _, id := range ids {
		out = append(out, h.handlers[id])
	}
	return out
}

func (h *Host) eval(expr string, res any) error {
	return chromedp.Run(h.ctx, chromedp.Evaluate(expr, res))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
