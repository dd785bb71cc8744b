// Package strings normalizes lists of names such as regime names and field
// aliases.
package strings

import (
	"slices"
	"strings"
)

// Compact trims every value and drops blanks and repeats. First-seen order is
// kept, so callers that rank entries by position can rely on it.
func Compact(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// CanonicalSet lowercases, compacts and sorts values. Lists naming the same
// set in any order or case yield equal slices.
func CanonicalSet(values []string) []string {
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	out := Compact(lowered)
	slices.Sort(out)
	return out
}
