package manager

import (
	"errors"
	"fmt"
)

// Kind classifies registry and engine failures.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindInvalidInput  Kind = "invalid_input"
	KindIOError       Kind = "io_error"
	KindParseError    Kind = "parse_error"
	KindShapeMismatch Kind = "shape_mismatch"
	KindBackend       Kind = "backend"
)

// Error is returned by every Manager operation that can fail.
type Error struct {
	Kind  Kind
	Op    string
	Model string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return "model not found: " + e.Model
	}
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Model != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Model, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, model string, err error) *Error {
	return &Error{Kind: kind, Op: op, Model: model, Err: err}
}

func errorf(kind Kind, op, model, format string, args ...any) *Error {
	return newError(kind, op, model, fmt.Errorf(format, args...))
}

// ErrModelNotFound returns the error used when name is not registered.
func ErrModelNotFound(name string) error {
	return newError(KindNotFound, "lookup", name, nil)
}

// KindOf returns the Kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsModelNotFound reports whether err indicates an unregistered model name.
func IsModelNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalidInput reports whether err indicates malformed arguments.
func IsInvalidInput(err error) bool { return KindOf(err) == KindInvalidInput }

// IsShapeMismatch reports whether the input did not fit the model's declared shape.
func IsShapeMismatch(err error) bool { return KindOf(err) == KindShapeMismatch }

// IsIOError reports whether a source could not be read or fetched.
func IsIOError(err error) bool { return KindOf(err) == KindIOError }

// IsParseError reports whether model bytes could not be parsed into a graph.
func IsParseError(err error) bool { return KindOf(err) == KindParseError }

// IsBackend reports whether the forward pass itself failed.
func IsBackend(err error) bool { return KindOf(err) == KindBackend }
