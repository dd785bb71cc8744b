// Package sentinel holds infrastructure error facts. Engines and services wrap
// them in domain errors so callers can still match them with errors.Is.
package sentinel

import "errors"

var (
	// ErrInvalidState marks an operation on an object that was already torn down.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable marks a dependency, usually the browser, that cannot serve now.
	ErrUnavailable = errors.New("unavailable")
)
