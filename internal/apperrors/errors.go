// Package apperrors defines the typed error taxonomy shared by every
// plugin host subsystem. It mirrors the shape of the teacher's
// api/internal/errors.AppError (Code/Message/Details, New/Wrap
// constructors) but drops the HTTP status mapping: this module has no
// wire surface of its own, only a Kind a caller can switch on or test
// with errors.Is/errors.As.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure. Callers should treat Kind as
// a closed set and test it with Is or KindOf (or errors.Is against
// New(kind, "")) rather than string-matching Messages.
type Kind string

const (
	KindServiceNotFound     Kind = "service_not_found"
	KindValidationFailed    Kind = "validation_failed"
	KindActionExecution     Kind = "action_execution_error"
	KindPluginAlreadyExists Kind = "plugin_already_registered"
	KindPluginNotFound      Kind = "plugin_not_found"
	KindPluginValidation    Kind = "plugin_validation_error"
	KindCircularDependency  Kind = "circular_dependency"
	KindMissingDependencies Kind = "missing_dependencies"
	KindUnregisterBlocked   Kind = "unregister_blocked"
	KindInvalidFlow         Kind = "invalid_flow"
	KindFlowNotFound        Kind = "flow_not_found"
	KindNodeExecution       Kind = "node_execution_error"
	KindCancelled           Kind = "cancelled"
)

// Error is the error type returned by every package in this module.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, apperrors.New(KindX, "")) to match on Kind
// alone, so callers can build sentinel-style comparisons without
// needing the exact message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error that preserves err as its cause via Unwrap.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured context to an existing Error and
// returns the same pointer for chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
