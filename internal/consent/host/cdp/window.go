package cdp

import (
	"encoding/json"
	"fmt"

	"cmpbridge/internal/consent/ports"
)

// window is a JavaScript expression naming a browsing context. Evaluation
// failures, including cross-origin access, read as "nothing there".
type window struct {
	h    *Host
	expr string
}

func (w window) Parent() ports.Window {
	var top bool
	if err := w.h.eval(fmt.Sprintf("(function(){ try { var w = %s; return !w || w.parent === w; } catch (e) { return true; } })()", w.expr), &top); err != nil || top {
		return nil
	}
	return window{h: w.h, expr: "(" + w.expr + ").parent"}
}

func (w window) Frames() []ports.Window {
	var n int
	if err := w.h.eval(fmt.Sprintf("(function(){ try { return (%s).frames.length; } catch (e) { return 0; } })()", w.expr), &n); err != nil {
		return nil
	}
	out := make([]ports.Window, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, window{h: w.h, expr: fmt.Sprintf("(%s).frames[%d]", w.expr, i)})
	}
	return out
}

func (w window) HasFrame(name string) bool {
	var ok bool
	if err := w.h.eval(fmt.Sprintf("window.__cmpbridge.hasFrame(%s, %s)", w.expr, quote(name)), &ok); err != nil {
		return false
	}
	return ok
}

func (w window) PostMessage(data any) {
	encoded, err := json.Marshal(data)
	if err != nil {
		w.h.logger.Debug("postMessage payload not serializable", "error", err)
		return
	}
	var ok bool
	expr := fmt.Sprintf("(function(){ try { (%s).postMessage(%s, '*'); return true; } catch (e) { return false; } })()", w.expr, encoded)
	if err := w.h.eval(expr, &ok); err != nil {
		w.h.logger.Debug("postMessage failed", "error", err)
	}
}
