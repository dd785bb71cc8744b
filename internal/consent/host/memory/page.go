// Package memory is an in-process page for driving the consent engine without
// a browser. Messages are queued and delivered by Flush; timers run on a manual
// clock advanced by Advance. Nothing happens in the background.
package memory

import (
	"encoding/json"
	"sync"
	"time"

	"cmpbridge/internal/consent/ports"
)

// Page owns a tree of frames, a message queue and a manual clock.
type Page struct {
	mu      sync.Mutex
	top     *Frame
	now     time.Time
	queue   []delivery
	timers  map[int]*timer
	nextID  int
	maxLoop int
}

type delivery struct {
	to *Frame
	ev ports.MessageEvent
}

type timer struct {
	interval time.Duration
	next     time.Time
	fn       func()
}

// NewPage returns a page with an empty top frame.
func NewPage() *Page {
	p := &Page{
		now:     time.Unix(0, 0),
		timers:  make(map[int]*timer),
		maxLoop: 10000,
	}
	p.top = &Frame{page: p, globals: make(map[string]ports.GlobalFunc), listeners: make(map[int]func(ports.MessageEvent))}
	return p
}

// Top returns the top frame.
func (p *Page) Top() *Frame {
	return p.top
}

// Flush delivers queued messages, including those posted while delivering,
// until the queue is empty. It returns how many were delivered.
func (p *Page) Flush() int {
	delivered := 0
	for delivered < p.maxLoop {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return delivered
		}
		d := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		for _, h := range d.to.handlers() {
			h(d.ev)
		}
		delivered++
	}
	return delivered
}

// Pending returns the number of undelivered messages.
func (p *Page) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Advance moves the clock forward by d, firing due timers in order and
// flushing messages after each firing.
func (p *Page) Advance(d time.Duration) {
	p.mu.Lock()
	end := p.now.Add(d)
	p.mu.Unlock()

	for {
		p.mu.Lock()
		t := p.dueLocked(end)
		if t == nil {
			p.now = end
			p.mu.Unlock()
			p.Flush()
			return
		}
		p.now = t.next
		t.next = t.next.Add(t.interval)
		fn := t.fn
		p.mu.Unlock()

		fn()
		p.Flush()
	}
}

// dueLocked returns the earliest timer due by end; ties go to the older timer.
func (p *Page) dueLocked(end time.Time) *timer {
	var (
		bestID = -1
		best   *timer
	)
	for id, t := range p.timers {
		if t.next.After(end) {
			continue
		}
		if best == nil || t.next.Before(best.next) || (t.next.Equal(best.next) && id < bestID) {
			bestID, best = id, t
		}
	}
	return best
}

// Timers returns the number of live timers.
func (p *Page) Timers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

func (p *Page) every(interval time.Duration, fn func()) *ports.Registration {
	if interval <= 0 {
		return ports.NewRegistration(nil)
	}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.timers[id] = &timer{interval: interval, next: p.now.Add(interval), fn: fn}
	p.mu.Unlock()

	return ports.NewRegistration(func() {
		p.mu.Lock()
		delete(p.timers, id)
		p.mu.Unlock()
	})
}

func (p *Page) post(to, from *Frame, data any) {
	ev := ports.MessageEvent{Data: structuredClone(data)}
	if from != nil {
		ev.Source = handle{frame: from, view: to}
	}
	p.mu.Lock()
	p.queue = append(p.queue, delivery{to: to, ev: ev})
	p.mu.Unlock()
}

// structuredClone copies data the way postMessage would, so receivers never
// share maps with senders and numbers arrive as float64.
func structuredClone(data any) any {
	b, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return data
	}
	return out
}
