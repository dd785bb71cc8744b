// Package correlation issues call identifiers and matches asynchronous
// responses back to the request that produced them.
package correlation

import (
	"strconv"

	"github.com/google/uuid"
)

// Registry hands out call ids. The zero value is ready to use.
type Registry struct{}

// New returns a Registry backed by random UUIDs.
func New() *Registry {
	return &Registry{}
}

// NextID returns an id unique for the lifetime of the process.
func (r *Registry) NextID() string {
	return uuid.NewString()
}

// Matches reports whether candidate answers the call identified by expected.
// An empty expected id matches nothing.
func (r *Registry) Matches(expected, candidate string) bool {
	return expected != "" && expected == candidate
}

// CallID extracts a call id from a decoded message field. CMPs echo the id back
// as whatever JSON type they received, so numeric ids are accepted too.
func CallID(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case interface{ String() string }:
		return t.String(), true
	}
	return "", false
}
