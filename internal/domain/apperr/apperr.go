// Package apperr defines the error kinds shared by the core operations.
//
// Every error returned to a caller wraps exactly one kind, so transports can
// branch with errors.Is without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrValidation marks missing or malformed input. Nothing was applied.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to an entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRender marks a failed artifact generation. Committed state is untouched.
	ErrRender = errors.New("render failed")
	// ErrUnavailable marks an unreachable dependency (cache, dispatcher).
	// The core logs and absorbs these; they never fail a request.
	ErrUnavailable = errors.New("dependency unavailable")
)

// Error carries the failing operation and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of kind for op without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind returns an error of kind for op wrapping cause.
func WrapKind(op string, kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Validation is shorthand for a validation error with a message.
func Validation(op, format string, args ...any) error {
	return WrapKind(op, ErrValidation, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrRender, ErrUnavailable} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the human readable cause, without op and kind prefixes.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
