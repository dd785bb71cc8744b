package models

import (
	"fmt"

	dErrors "cmpbridge/pkg/domain-errors"
	pstrings "cmpbridge/pkg/platform/strings"
)

// Kind is the canonical type a consent field is coerced to.
type Kind string

const (
	KindBoolean Kind = "boolean"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
)

// Canonical field names shared by every regime.
const (
	FieldApplies       = "applies"
	FieldConsentString = "consentString"
	FieldVersion       = "version"
)

// FieldSpec describes one canonical field and the raw property names a CMP may
// use for it. Aliases are ordered: the first one present in a payload wins.
type FieldSpec struct {
	Name    string
	Kind    Kind
	Default any
	Aliases []string
}

// DataModel maps canonical field names to their specs. It is immutable once
// built; per-instance overrides live on the adapter, not here.
type DataModel struct {
	primary string
	order   []string
	fields  map[string]FieldSpec
}

// NewDataModel validates fields and builds a DataModel. primary names the
// string field that receives a bare-string payload.
//
// Errors: returns CodeInvalidInput for an empty model, duplicate or unnamed
// fields, unknown kinds, defaults that do not match their kind, or a primary
// that is missing or not a string field.
func NewDataModel(primary string, fields ...FieldSpec) (*DataModel, error) {
	if len(fields) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "data model needs at least one field")
	}
	m := &DataModel{
		primary: primary,
		order:   make([]string, 0, len(fields)),
		fields:  make(map[string]FieldSpec, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "field name is required")
		}
		if _, dup := m.fields[f.Name]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "duplicate field: "+f.Name)
		}
		if err := checkDefault(f); err != nil {
			return nil, err
		}
		f.Aliases = pstrings.Compact(f.Aliases)
		m.fields[f.Name] = f
		m.order = append(m.order, f.Name)
	}
	p, ok := m.fields[primary]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "primary field not in model: "+primary)
	}
	if p.Kind != KindString {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "primary field must be a string field: "+primary)
	}
	return m, nil
}

func checkDefault(f FieldSpec) error {
	var ok bool
	switch f.Kind {
	case KindBoolean:
		_, ok = f.Default.(bool)
	case KindString:
		_, ok = f.Default.(string)
	case KindNumber:
		_, ok = f.Default.(float64)
	default:
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("field %s: unknown kind %q", f.Name, f.Kind))
	}
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("field %s: default %v (%T) does not match kind %s", f.Name, f.Default, f.Default, f.Kind))
	}
	return nil
}

// Primary returns the name of the field a bare-string payload populates.
func (m *DataModel) Primary() string {
	return m.primary
}

// Field returns the spec for name.
func (m *DataModel) Field(name string) (FieldSpec, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Names returns field names in declaration order.
func (m *DataModel) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Defaults returns the snapshot a model yields before any payload is accepted.
func (m *DataModel) Defaults() Snapshot {
	values := make(map[string]any, len(m.order))
	for _, name := range m.order {
		values[name] = m.fields[name].Default
	}
	return newSnapshot(values, "")
}
