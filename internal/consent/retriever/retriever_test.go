package retriever

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmpbridge/internal/consent/host/memory"
	"cmpbridge/internal/consent/ports"
)

// recorder is a Resolver that keeps every payload it is given.
type recorder struct {
	mu      sync.Mutex
	sources []string
	values  []any
}

func (r *recorder) Resolve(source string, raw any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	r.values = append(r.values, raw)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func (r *recorder) last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return nil
	}
	return r.values[len(r.values)-1]
}

func TestPositionalAndVersionedArgs(t *testing.T) {
	cb := func(any, bool) {}

	args := PositionalArgs("getConsentData", nil, cb)
	require.Len(t, args, 3)
	assert.Equal(t, "getConsentData", args[0])
	assert.Nil(t, args[1])

	args = VersionedArgs(2)("getTCData", nil, cb)
	require.Len(t, args, 3)
	assert.Equal(t, 2, args[1])

	args = VersionedArgs(2)("getTCData", []int{1}, cb)
	require.Len(t, args, 4)
	assert.Equal(t, []int{1}, args[3])
}

func TestWindowFuncResolvesSynchronousCallback(t *testing.T) {
	page := memory.NewPage()
	calls := 0
	page.Top().SetGlobal("__cmp", func(args ...any) {
		calls++
		cb := args[2].(ports.Callback)
		cb("XYZ", true)
	})
	rec := &recorder{}

	f := NewWindowFunc(page.Top().Host(), "__cmp", FuncConfig{ID: "gdpr.window", Command: "getConsentData"}, rec, nil)
	f.Activate()

	assert.Equal(t, 1, calls)
	assert.Equal(t, "XYZ", rec.last())
	assert.Equal(t, []string{"gdpr.window"}, rec.sources)
}

func TestWindowFuncIgnoresFailuresAndEmptyResults(t *testing.T) {
	page := memory.NewPage()
	page.Top().SetGlobal("__cmp", func(args ...any) {
		cb := args[2].(ports.Callback)
		cb("XYZ", false)
		cb(nil, true)
	})
	rec := &recorder{}

	NewWindowFunc(page.Top().Host(), "__cmp", FuncConfig{ID: "gdpr.window"}, rec, nil).Activate()

	assert.Zero(t, rec.count())
}

func TestWindowFuncMissingGlobalIsInert(t *testing.T) {
	page := memory.NewPage()
	rec := &recorder{}
	f := NewWindowFunc(page.Top().Host(), "__cmp", FuncConfig{ID: "gdpr.window", PollInterval: time.Second}, rec, nil)

	f.Activate()
	// Installed after the first lookup: the retriever stays inert.
	page.Top().SetGlobal("__cmp", func(args ...any) { args[2].(ports.Callback)("late", true) })
	f.Activate()
	page.Advance(5 * time.Second)

	assert.Zero(t, rec.count())
	assert.Zero(t, page.Timers())
}

func TestWindowFuncPollsUntilDeactivated(t *testing.T) {
	page := memory.NewPage()
	calls := 0
	page.Top().SetGlobal("__uspapi", func(args ...any) {
		calls++
		if calls >= 3 {
			args[2].(ports.Callback)(map[string]any{"uspString": "1YNN"}, true)
		}
	})
	rec := &recorder{}
	f := NewWindowFunc(page.Top().Host(), "__uspapi", FuncConfig{ID: "usp.window", PollInterval: 100 * time.Millisecond}, rec, nil)

	f.Activate()
	f.Activate()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, page.Timers(), "timer is created once")

	page.Advance(100 * time.Millisecond)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, rec.count())

	f.Deactivate()
	assert.Zero(t, page.Timers())
	page.Advance(time.Second)
	f.Activate()
	assert.Equal(t, 3, calls)
}

func TestCustomFuncIsNeverPolled(t *testing.T) {
	calls := 0
	fn := func(args ...any) { calls++ }
	rec := &recorder{}

	f := NewCustomFunc(fn, FuncConfig{ID: "gdpr.custom", PollInterval: time.Millisecond}, rec, nil)
	f.Activate()

	assert.Equal(t, 1, calls)
	assert.Zero(t, f.cfg.PollInterval)
}

func TestFuncRecoversFromPanickingCMP(t *testing.T) {
	rec := &recorder{}
	f := NewCustomFunc(func(...any) { panic("cmp exploded") }, FuncConfig{ID: "gdpr.custom"}, rec, nil)

	assert.NotPanics(t, f.Activate)
	assert.Zero(t, rec.count())
}

func TestFuncDropsCallbackAfterDeactivate(t *testing.T) {
	var pending ports.Callback
	rec := &recorder{}
	f := NewCustomFunc(func(args ...any) { pending = args[2].(ports.Callback) }, FuncConfig{ID: "gdpr.custom"}, rec, nil)

	f.Activate()
	require.NotNil(t, pending)
	f.Deactivate()
	pending("XYZ", true)

	assert.Zero(t, rec.count())
}

func TestFuncAcceptFilter(t *testing.T) {
	var cb ports.Callback
	accepted := 0
	rec := &recorder{}
	f := NewCustomFunc(func(args ...any) { cb = args[2].(ports.Callback) }, FuncConfig{
		ID:       "x",
		Accept:   func(result any) bool { return result == "ok" },
		OnAccept: func(any) { accepted++ },
	}, rec, nil)

	f.Activate()
	cb("nope", true)
	cb("ok", true)

	assert.Equal(t, 1, accepted)
	assert.Equal(t, []any{"ok"}, rec.values)
}
