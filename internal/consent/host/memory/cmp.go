package memory

import "cmpbridge/internal/consent/ports"

// Answer produces the reply to one cross-frame call. Returning ok=false leaves
// the call unanswered.
type Answer func(call map[string]any) (value any, success bool, ok bool)

// ServeCalls makes f answer calls posted under callKey, the way a CMP frame
// does, replying to the sender under returnKey with the call's id echoed.
func (f *Frame) ServeCalls(callKey, returnKey string, answer Answer) *ports.Registration {
	return f.OnMessage(func(ev ports.MessageEvent) {
		msg, ok := ev.Data.(map[string]any)
		if !ok {
			return
		}
		call, ok := msg[callKey].(map[string]any)
		if !ok || ev.Source == nil {
			return
		}
		value, success, ok := answer(call)
		if !ok {
			return
		}
		ev.Source.PostMessage(map[string]any{
			returnKey: map[string]any{
				"returnValue": value,
				"success":     success,
				"callId":      call["callId"],
			},
		})
	})
}
