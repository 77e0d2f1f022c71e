// Package clockerr defines the typed error kinds described in spec.md §7,
// so callers can distinguish them with errors.As instead of string matching,
// while remaining compatible with fmt.Errorf("...: %w", err) wrapping.
package clockerr

import "fmt"

// ParseError wraps a manifest lex/grammar problem with its source location.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// EvalError covers missing policies, unknown attributes, dependency cycles
// and resource key collisions encountered while specializing a manifest.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return "evaluation error: " + e.Msg }

// ResourceNotFound is returned when a FILE request names an unknown
// resource key.
type ResourceNotFound struct {
	Key string
}

func (e *ResourceNotFound) Error() string { return "resource not found: " + e.Key }

// ContentIOError wraps an I/O failure opening or reading a content source.
type ContentIOError struct {
	Path string
	Err  error
}

func (e *ContentIOError) Error() string {
	return fmt.Sprintf("content I/O error on %s: %v", e.Path, e.Err)
}

func (e *ContentIOError) Unwrap() error { return e.Err }

// ProtocolViolation is returned when a frame event arrives from a state it
// is not valid in, or the event type is unrecognized.
type ProtocolViolation struct {
	Event string
	State string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s from state %s", e.Event, e.State)
}

// AuthFailure indicates a peer certificate was rejected by the trust
// database before the FSM ever saw the frame.
type AuthFailure struct {
	Identity string
}

func (e *AuthFailure) Error() string { return "auth failure: " + e.Identity }

// CapacityExhausted is returned when the session cache is full and every
// entry is still within its minimum-life window.
type CapacityExhausted struct{}

func (e *CapacityExhausted) Error() string { return "server busy: session cache exhausted" }

// InternalError marks an invariant violation — a bug, not a client error.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "internal error: " + e.Msg }
