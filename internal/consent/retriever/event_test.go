package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmpbridge/internal/consent/host/memory"
	"cmpbridge/internal/consent/ports"
)

// fakeTCF records every __tcfapi call and keeps the event listener callback.
type fakeTCF struct {
	commands []string
	listener ports.Callback
	removed  []any
}

func (c *fakeTCF) call(args ...any) {
	command := args[0].(string)
	c.commands = append(c.commands, command)
	switch command {
	case "addEventListener":
		c.listener = args[2].(ports.Callback)
	case "removeEventListener":
		c.removed = append(c.removed, args[3])
	}
}

func TestEventListenerResolvesOnlySettledEvents(t *testing.T) {
	page := memory.NewPage()
	cmp := &fakeTCF{}
	page.Top().SetGlobal("__tcfapi", cmp.call)
	rec := &recorder{}
	first := 0

	l := NewEventListener(page.Top().Host(), "__tcfapi", EventConfig{
		ID:           "tcfv2.event",
		Command:      "addEventListener",
		Version:      2,
		OnFirstEvent: func() { first++ },
	}, rec, nil)
	l.Activate()
	require.NotNil(t, cmp.listener)

	cmp.listener(map[string]any{"eventStatus": EventStatusUIShown, "listenerId": 4}, true)
	assert.Zero(t, rec.count())

	cmp.listener(map[string]any{"eventStatus": EventStatusActionComplete, "tcString": "abc", "listenerId": 4}, true)
	cmp.listener(map[string]any{"eventStatus": EventStatusLoaded, "tcString": "def", "listenerId": 4}, true)
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 1, first)

	l.Deactivate()
	assert.Equal(t, []any{4}, cmp.removed)
	assert.Equal(t, []string{"addEventListener", "removeEventListener"}, cmp.commands)

	cmp.listener(map[string]any{"eventStatus": EventStatusLoaded, "tcString": "late"}, true)
	assert.Equal(t, 2, rec.count())
}

func TestEventListenerWithoutListenerIDSkipsRemoval(t *testing.T) {
	page := memory.NewPage()
	cmp := &fakeTCF{}
	page.Top().SetGlobal("__tcfapi", cmp.call)

	l := NewEventListener(page.Top().Host(), "__tcfapi", EventConfig{ID: "tcfv2.event", Command: "addEventListener", Version: 2}, &recorder{}, nil)
	l.Activate()
	l.Deactivate()

	assert.Equal(t, []string{"addEventListener"}, cmp.commands)
}

func TestEventReady(t *testing.T) {
	assert.True(t, EventReady(map[string]any{"eventStatus": "tcloaded"}))
	assert.True(t, EventReady(map[string]any{"eventStatus": "useractioncomplete"}))
	assert.False(t, EventReady(map[string]any{"eventStatus": "cmpuishown"}))
	assert.False(t, EventReady(map[string]any{}))
}
