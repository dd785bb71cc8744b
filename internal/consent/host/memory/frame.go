package memory

import (
	"slices"
	"time"

	"cmpbridge/internal/consent/ports"
)

// Frame is one browsing context on a Page.
type Frame struct {
	page     *Page
	name     string
	parent   *Frame
	children []*Frame
	// Opaque frames report no named children, like a cross-origin context
	// that throws on property access.
	opaque    bool
	globals   map[string]ports.GlobalFunc
	listeners map[int]func(ports.MessageEvent)
	nextID    int
}

// AddFrame appends a named child frame.
func (f *Frame) AddFrame(name string) *Frame {
	child := &Frame{
		page:      f.page,
		name:      name,
		parent:    f,
		globals:   make(map[string]ports.GlobalFunc),
		listeners: make(map[int]func(ports.MessageEvent)),
	}
	f.page.mu.Lock()
	f.children = append(f.children, child)
	f.page.mu.Unlock()
	return child
}

// Name returns the frame's name.
func (f *Frame) Name() string {
	return f.name
}

// SetOpaque makes named-frame probing on f fail.
func (f *Frame) SetOpaque(opaque bool) {
	f.page.mu.Lock()
	f.opaque = opaque
	f.page.mu.Unlock()
}

// SetGlobal exposes fn as a global function on f.
func (f *Frame) SetGlobal(name string, fn ports.GlobalFunc) {
	f.page.mu.Lock()
	f.globals[name] = fn
	f.page.mu.Unlock()
}

// OnMessage registers a handler on f and returns its registration.
func (f *Frame) OnMessage(fn func(ports.MessageEvent)) *ports.Registration {
	f.page.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.page.mu.Unlock()

	return ports.NewRegistration(func() {
		f.page.mu.Lock()
		delete(f.listeners, id)
		f.page.mu.Unlock()
	})
}

// Listeners returns the number of message handlers registered on f.
func (f *Frame) Listeners() int {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	return len(f.listeners)
}

// Post queues a message to f as if sent by from. from may be nil.
func (f *Frame) Post(from *Frame, data any) {
	f.page.post(f, from, data)
}

// Host returns a host whose current window is f.
func (f *Frame) Host() ports.Host {
	return &host{frame: f}
}

func (f *Frame) handlers() []func(ports.MessageEvent) {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(ports.MessageEvent), 0, len(ids))
	for _, id := range ids {
		out = append(out, f.listeners[id])
	}
	return out
}

func (f *Frame) hasChild(name string) bool {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	if f.opaque {
		return false
	}
	for _, c := range f.children {
		if c.name == name {
			return true
		}
	}
	return false
}

func (f *Frame) childList() []*Frame {
	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	out := make([]*Frame, len(f.children))
	copy(out, f.children)
	return out
}

// host binds the ports.Host capabilities to one frame.
type host struct {
	frame *Frame
}

func (h *host) Window() ports.Window {
	return handle{frame: h.frame, view: h.frame}
}

func (h *host) ResolveGlobal(name string) (ports.GlobalFunc, bool) {
	h.frame.page.mu.Lock()
	defer h.frame.page.mu.Unlock()
	fn, ok := h.frame.globals[name]
	return fn, ok && fn != nil
}

func (h *host) Listen(handler func(ports.MessageEvent)) *ports.Registration {
	return h.frame.OnMessage(handler)
}

func (h *host) Every(interval time.Duration, fn func()) *ports.Registration {
	return h.frame.page.every(interval, fn)
}

// handle is a window reference as seen from view; messages posted through it
// carry view as their source.
type handle struct {
	frame *Frame
	view  *Frame
}

func (w handle) Parent() ports.Window {
	if w.frame.parent == nil {
		return nil
	}
	return handle{frame: w.frame.parent, view: w.view}
}

func (w handle) Frames() []ports.Window {
	children := w.frame.childList()
	out := make([]ports.Window, 0, len(children))
	for _, c := range children {
		out = append(out, handle{frame: c, view: w.view})
	}
	return out
}

func (w handle) HasFrame(name string) bool {
	return w.frame.hasChild(name)
}

func (w handle) PostMessage(data any) {
	w.frame.page.post(w.frame, w.view, data)
}

// FrameOf returns the frame behind a window handle obtained from this package.
func FrameOf(w ports.Window) (*Frame, bool) {
	h, ok := w.(handle)
	if !ok {
		return nil, false
	}
	return h.frame, true
}
