package retriever

import (
	"encoding/json"
	"strings"
	"sync"

	"cmpbridge/internal/consent/correlation"
	"cmpbridge/internal/consent/metrics"
	"cmpbridge/internal/consent/observability"
	"cmpbridge/internal/consent/ports"
)

// FrameConfig names the pieces of a regime's cross-frame protocol.
type FrameConfig struct {
	ID          string
	LocatorName string
	CallKey     string
	ReturnKey   string
	Command     string
	Parameter   any
	Version     int
	CallID      string
	MaxDepth    int
}

// Frame obtains consent by posting a correlated call to the window that hosts
// the CMP locator frame and listening for the matching return message.
type Frame struct {
	cfg      FrameConfig
	host     ports.Host
	registry *correlation.Registry
	resolver Resolver
	diag     *observability.Diagnostics

	mu       sync.Mutex
	listener *ports.Registration
	closed   bool
}

// NewFrame builds a frame-message retriever.
func NewFrame(host ports.Host, registry *correlation.Registry, cfg FrameConfig, resolver Resolver, diag *observability.Diagnostics) *Frame {
	if registry == nil {
		registry = correlation.New()
	}
	return &Frame{cfg: cfg, host: host, registry: registry, resolver: resolver, diag: diag}
}

// ID implements engine.Retriever.
func (f *Frame) ID() string {
	return f.cfg.ID
}

// Activate locates the CMP frame and posts the call. The message listener is
// registered once, before the first post, so a synchronous reply is not lost.
// If no frame is found nothing is registered and a later Activate may retry.
func (f *Frame) Activate() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	target := LocateFrame(f.host.Window(), f.cfg.LocatorName, f.cfg.MaxDepth)
	if target == nil {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.listener == nil {
		f.listener = f.host.Listen(f.onMessage)
	}
	f.mu.Unlock()

	target.PostMessage(map[string]any{
		f.cfg.CallKey: map[string]any{
			"command":   f.cfg.Command,
			"parameter": f.cfg.Parameter,
			"version":   f.cfg.Version,
			"callId":    f.cfg.CallID,
		},
	})
}

// Deactivate removes the message listener for good.
func (f *Frame) Deactivate() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	listener := f.listener
	f.listener = nil
	f.mu.Unlock()

	listener.Cancel()
}

// onMessage filters arbitrary page traffic down to this request's return.
func (f *Frame) onMessage(ev ports.MessageEvent) {
	msg, ok := decodeObject(ev.Data)
	if !ok {
		f.diag.Dropped(f.cfg.ID, metrics.ReasonForeign)
		return
	}
	raw, ok := msg[f.cfg.ReturnKey]
	if !ok || raw == nil {
		f.diag.Dropped(f.cfg.ID, metrics.ReasonForeign)
		return
	}
	ret, ok := decodeObject(raw)
	if !ok {
		f.diag.Dropped(f.cfg.ID, metrics.ReasonMalformed)
		return
	}
	callID, _ := correlation.CallID(ret["callId"])
	if !f.registry.Matches(f.cfg.CallID, callID) {
		f.diag.Dropped(f.cfg.ID, metrics.ReasonMismatch)
		return
	}

	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}

	success, _ := ret["success"].(bool)
	value := decodeReturnValue(ret["returnValue"])
	if !success || value == nil {
		return
	}
	f.resolver.Resolve(f.cfg.ID, value)
}

// decodeObject accepts a decoded object or a JSON string holding one.
func decodeObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, t != nil
	case string:
		return decodeJSONObject(t)
	case json.RawMessage:
		return decodeJSONObject(string(t))
	case []byte:
		return decodeJSONObject(string(t))
	}
	return nil, false
}

// decodeReturnValue unwraps a returnValue sent as a JSON document. A decoded
// object or string replaces the raw text; anything else, including a bare
// consent string, is kept as sent.
func decodeReturnValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &decoded); err != nil {
		return v
	}
	switch decoded.(type) {
	case map[string]any, string:
		return decoded
	}
	return v
}

func decodeJSONObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
