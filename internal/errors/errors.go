// Package errors provides the error kinds raised while validating and running
// a SeeFlaw test, and the process exit codes derived from them.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Exit codes of the seeflaw binary.
const (
	ExitSuccess    = 0
	ExitError      = 1 // validation or runtime error
	ExitTestFailed = 2 // run completed but at least one row failed
)

// Kind classifies an Error.
type Kind int

const (
	KindRuntime Kind = iota
	KindValidation
	KindDispatch
	KindCallee
	KindConflict
	KindLoad
	KindCancel
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDispatch:
		return "dispatch"
	case KindCallee:
		return "callee"
	case KindConflict:
		return "conflict"
	case KindLoad:
		return "load"
	case KindCancel:
		return "cancel"
	default:
		return "runtime"
	}
}

// Error is the base error type for SeeFlaw.
type Error struct {
	Kind    Kind
	Message string
	Fixture string // fixture type or id if applicable
	Method  string // fixture method if applicable
	Cause   error
	Stack   string // captured for callee panics
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Fixture != "" && e.Method != "" {
		return fmt.Sprintf("[%s : %s] %s", e.Fixture, e.Method, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error.
func (e *Error) ExitCode() int {
	return ExitError
}

// Validation creates a document validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Validationf creates a document validation error with formatting.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// Dispatch creates an error for a fixture method that could not be resolved or invoked.
func Dispatch(fixture, method string, cause error) *Error {
	return &Error{Kind: KindDispatch, Fixture: fixture, Method: method, Cause: cause}
}

// Callee wraps an error returned (or panicked) by a fixture method.
func Callee(fixture, method string, cause error, stack string) *Error {
	return &Error{Kind: KindCallee, Fixture: fixture, Method: method, Cause: cause, Stack: stack}
}

// Conflict creates a parameter conflict error.
func Conflict(name, have, want string) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("parameter %q already bound to %q, can not rebind to %q", name, have, want),
	}
}

// Load creates a fixture load error.
func Load(message string) *Error {
	return &Error{Kind: KindLoad, Message: message}
}

// Loadf creates a fixture load error with formatting.
func Loadf(format string, args ...any) *Error {
	return Load(fmt.Sprintf(format, args...))
}

// Cancel creates the error recorded on a call that was stopped or killed.
func Cancel(message string) *Error {
	return &Error{Kind: KindCancel, Message: message}
}

// Killed is recorded on the active call when the run is killed.
var Killed = Cancel("Process killed by user.")

// Stopped is recorded on rows a stopped run left uncalled.
var Stopped = Cancel("Call stopped before it ran.")

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *Error {
	return &Error{Kind: KindRuntime, Message: message + ": " + err.Error(), Cause: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// StackOf returns the stack captured for err, if any.
func StackOf(err error) string {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Stack
	}
	return ""
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var se *Error
	if stderrors.As(err, &se) {
		return se.ExitCode()
	}
	return ExitError
}
