package retriever

import (
	"sync"

	"cmpbridge/internal/consent/observability"
	"cmpbridge/internal/consent/ports"
)

// TCF event statuses. Only loaded and action-complete carry settled consent.
const (
	EventStatusLoaded         = "tcloaded"
	EventStatusActionComplete = "useractioncomplete"
	EventStatusUIShown        = "cmpuishown"
)

const (
	commandRemoveEventListener = "removeEventListener"
	eventStatusKey             = "eventStatus"
	listenerIDKey              = "listenerId"
)

// EventConfig configures an event-listener retriever.
type EventConfig struct {
	ID      string
	Command string
	Version int
	// OnFirstEvent runs once, on the first event that carries consent.
	OnFirstEvent func()
}

// NewEventListener registers a CMP event listener through the global name.
// Only events whose status says the TC data is ready are resolved. The
// listener is removed from the CMP on deactivation when it reported its id.
func NewEventListener(host ports.Host, name string, cfg EventConfig, resolver Resolver, diag *observability.Diagnostics) *Func {
	var (
		once       sync.Once
		mu         sync.Mutex
		listenerID any
	)
	args := VersionedArgs(cfg.Version)
	return NewWindowFunc(host, name, FuncConfig{
		ID:      cfg.ID,
		Command: cfg.Command,
		Args:    args,
		Accept: func(result any) bool {
			data, ok := result.(map[string]any)
			if !ok {
				return false
			}
			if id, ok := data[listenerIDKey]; ok && id != nil {
				mu.Lock()
				listenerID = id
				mu.Unlock()
			}
			return EventReady(data)
		},
		OnAccept: func(any) {
			if cfg.OnFirstEvent != nil {
				once.Do(cfg.OnFirstEvent)
			}
		},
		OnDeactivate: func(fn ports.GlobalFunc) {
			mu.Lock()
			id := listenerID
			mu.Unlock()
			if id == nil {
				return
			}
			invoke(diag, cfg.ID, fn, args(commandRemoveEventListener, id, func(any, bool) {}))
		},
	}, resolver, diag)
}

// EventReady reports whether a TCF event payload carries settled consent.
func EventReady(data map[string]any) bool {
	status, _ := data[eventStatusKey].(string)
	return status == EventStatusLoaded || status == EventStatusActionComplete
}
