package models

import "maps"

// Snapshot is an immutable view of a data model's values. Fields holds every
// canonical field; the typed accessors cover the three fields all regimes share.
type Snapshot struct {
	Applies       bool    `json:"applies" yaml:"applies"`
	ConsentString string  `json:"consentString" yaml:"consentString"`
	Version       float64 `json:"version" yaml:"version"`
	// Source is the id of the retriever that produced this snapshot; empty for defaults.
	Source string         `json:"source,omitempty" yaml:"source,omitempty"`
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

func newSnapshot(values map[string]any, source string) Snapshot {
	s := Snapshot{Source: source, Fields: values}
	if v, ok := values[FieldApplies].(bool); ok {
		s.Applies = v
	}
	if v, ok := values[FieldConsentString].(string); ok {
		s.ConsentString = v
	}
	if v, ok := values[FieldVersion].(float64); ok {
		s.Version = v
	}
	return s
}

// Clone returns a copy of s whose Fields map is not shared with s.
func (s Snapshot) Clone() Snapshot {
	s.Fields = maps.Clone(s.Fields)
	return s
}

// WithSource returns a copy of s attributed to source.
func (s Snapshot) WithSource(source string) Snapshot {
	return newSnapshot(maps.Clone(s.Fields), source)
}

// WithApplies returns a copy of s with the applies field forced to v.
func (s Snapshot) WithApplies(v bool) Snapshot {
	values := maps.Clone(s.Fields)
	if values == nil {
		values = make(map[string]any, 1)
	}
	values[FieldApplies] = v
	return newSnapshot(values, s.Source)
}

// Get returns a field value by canonical name.
func (s Snapshot) Get(name string) (any, bool) {
	v, ok := s.Fields[name]
	return v, ok
}
