// Package retriever implements the channels a CMP may expose consent through:
// a global function (optionally polled), a custom function supplied by the
// publisher, and a correlated postMessage exchange with a locator frame.
//
// Every retriever has an idempotent Activate and a permanent Deactivate: once
// deactivated, further activations do nothing and late callbacks are dropped.
package retriever

import (
	"cmpbridge/internal/consent/observability"
	"cmpbridge/internal/consent/ports"
)

// Resolver accepts raw payloads on behalf of one consent request.
// It reports whether the payload resolved the request.
type Resolver interface {
	Resolve(source string, raw any) bool
}

// ArgsFunc lays out the arguments of a CMP global function call.
type ArgsFunc func(command string, parameter any, cb ports.Callback) []any

// PositionalArgs is the (command, parameter, callback) convention used by
// __cmp and __uspapi.
func PositionalArgs(command string, parameter any, cb ports.Callback) []any {
	return []any{command, parameter, cb}
}

// VersionedArgs is the (command, version, callback[, parameter]) convention
// used by __tcfapi.
func VersionedArgs(version int) ArgsFunc {
	return func(command string, parameter any, cb ports.Callback) []any {
		args := []any{command, version, cb}
		if parameter != nil {
			args = append(args, parameter)
		}
		return args
	}
}

// invoke calls fn and absorbs a panic from the CMP side.
func invoke(diag *observability.Diagnostics, source string, fn ports.GlobalFunc, args []any) {
	defer func() {
		if v := recover(); v != nil {
			diag.Recovered(source, v)
		}
	}()
	fn(args...)
}
