package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// ErrUnrecognizedPayload is returned by Interpret for payloads that are neither
// a bare consent string nor a structured object. Callers must not resolve on it.
var ErrUnrecognizedPayload = errors.New("unrecognized consent payload")

// Interpret normalizes a raw CMP payload into a snapshot of m.
//
// A string payload populates the primary field and leaves every other field at
// its default. A map payload is scanned per field: the first alias present with
// a non-nil value supplies the value, coerced to the field's kind. JSON bytes
// are decoded first and then handled as either shape.
func (m *DataModel) Interpret(raw any) (Snapshot, error) {
	switch v := raw.(type) {
	case string:
		values := m.defaultValues()
		values[m.primary] = v
		return newSnapshot(values, ""), nil
	case map[string]any:
		if v == nil {
			return Snapshot{}, ErrUnrecognizedPayload
		}
		return newSnapshot(m.scan(v), ""), nil
	case json.RawMessage:
		return m.interpretJSON(v)
	case []byte:
		return m.interpretJSON(v)
	default:
		return Snapshot{}, ErrUnrecognizedPayload
	}
}

func (m *DataModel) interpretJSON(b []byte) (Snapshot, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Snapshot{}, ErrUnrecognizedPayload
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return Snapshot{}, ErrUnrecognizedPayload
	}
	switch decoded.(type) {
	case string, map[string]any:
		return m.Interpret(decoded)
	default:
		return Snapshot{}, ErrUnrecognizedPayload
	}
}

func (m *DataModel) defaultValues() map[string]any {
	values := make(map[string]any, len(m.order))
	for _, name := range m.order {
		values[name] = m.fields[name].Default
	}
	return values
}

func (m *DataModel) scan(raw map[string]any) map[string]any {
	values := m.defaultValues()
	for _, name := range m.order {
		f := m.fields[name]
		for _, alias := range f.Aliases {
			v, ok := raw[alias]
			if !ok || v == nil {
				continue
			}
			if coerced, ok := coerce(v, f.Kind); ok {
				values[name] = coerced
			}
			break
		}
	}
	return values
}

func coerce(v any, kind Kind) (any, bool) {
	switch kind {
	case KindBoolean:
		return toBool(v)
	case KindNumber:
		return toNumber(v)
	case KindString:
		return toString(v)
	}
	return nil, false
}

func toBool(v any) (any, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, true
		}
		return t != "", true
	}
	if n, ok := toNumber(v); ok {
		f := n.(float64)
		return f != 0 && !math.IsNaN(f), true
	}
	return nil, false
}

func toNumber(v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case bool:
		if t {
			return float64(1), true
		}
		return float64(0), true
	}
	return nil, false
}

func toString(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	if n, ok := toNumber(v); ok {
		return strconv.FormatFloat(n.(float64), 'f', -1, 64), true
	}
	return nil, false
}
