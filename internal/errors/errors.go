// Package errors defines the stable error codes surfaced by every operation.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a stable identifier for a failure mode. Codes are part of the
// wire contract: clients dispatch on them, so they never change meaning.
type Code string

const (
	// BadArgument indicates malformed input: bad path, negative limit, bad range
	BadArgument Code = "BAD_ARGUMENT"
	// NotFound indicates an unknown file, symbol, or session
	NotFound Code = "NOT_FOUND"
	// AlreadyDefined indicates an annotation collision on define
	AlreadyDefined Code = "ALREADY_DEFINED"
	// ProjectEvicted indicates the session's project is no longer resident
	ProjectEvicted Code = "PROJECT_EVICTED"
	// Capacity indicates eviction could not free space
	Capacity Code = "CAPACITY"
	// BadPattern indicates a regex compile failure
	BadPattern Code = "BAD_PATTERN"
	// BadChunking indicates chunk overlap >= size
	BadChunking Code = "BAD_CHUNKING"
	// IO indicates a read or stat error
	IO Code = "IO"
	// Timeout indicates the per-operation deadline expired
	Timeout Code = "TIMEOUT"
	// Cancelled indicates the client abandoned the operation
	Cancelled Code = "CANCELLED"
	// Internal indicates an unexpected error
	Internal Code = "INTERNAL"
)

// Error carries a stable code plus free-text detail.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records cause for errors.Unwrap chains.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches two Errors by code, so errors.Is(err, errors.New(NotFound, ""))
// style sentinels work without identity comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if stderrors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the stable code from any error. Non-codescope errors map
// to Internal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return Internal
}
