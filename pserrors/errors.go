// Package pserrors defines the error kinds the runtime reports, per the
// error-handling design: every failure the scheduler surfaces is one of a
// small fixed set of kinds, never a bare type name.
package pserrors

import (
	"errors"
	"fmt"

	"github.com/psharp-go/psharp/event"
)

// Kind classifies a runtime failure. The scheduler branches on Kind to
// decide whether a run is a reported bug, an internal abort, or (for
// TransientStorageFailure) simply retried and never surfaced.
type Kind int

const (
	AssertionFailure Kind = iota
	LivenessViolation
	UnhandledException
	TransientStorageFailure
	ConfigurationError
	Deadlock
	InternalError
	ReplayDivergence
)

func (k Kind) String() string {
	switch k {
	case AssertionFailure:
		return "AssertionFailure"
	case LivenessViolation:
		return "LivenessViolation"
	case UnhandledException:
		return "UnhandledException"
	case TransientStorageFailure:
		return "TransientStorageFailure"
	case ConfigurationError:
		return "ConfigurationError"
	case Deadlock:
		return "Deadlock"
	case InternalError:
		return "InternalError"
	case ReplayDivergence:
		return "ReplayDivergence"
	default:
		return "UnknownError"
	}
}

// Error is the structured failure value returned by every package in this
// module. Machine and State are best-effort diagnostics; they are the zero
// value when a failure has no single origin (e.g. ConfigurationError raised
// before any machine exists).
type Error struct {
	Kind    Kind
	Message string
	Machine event.MachineId
	State   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Machine.IsZero() {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (machine=%s state=%s): %v", e.Kind, e.Message, e.Machine, e.State, e.Cause)
	}
	return fmt.Sprintf("%s: %s (machine=%s state=%s)", e.Kind, e.Message, e.Machine, e.State)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a bare Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At attaches machine/state origin to an Error, returning e for chaining.
func (e *Error) At(machine event.MachineId, state string) *Error {
	e.Machine = machine
	e.State = state
	return e
}

// Wrap creates an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsTransient reports whether err is (or wraps) a TransientStorageFailure,
// the only kind the reliable overlay is expected to retry internally.
func IsTransient(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == TransientStorageFailure
}

// IsBug reports whether err represents a reportable bug (as opposed to an
// InternalError, which aborts the whole run rather than being recorded as a
// counterexample).
func IsBug(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case AssertionFailure, LivenessViolation, UnhandledException, Deadlock, ReplayDivergence:
		return true
	default:
		return false
	}
}
