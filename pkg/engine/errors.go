package engine

import (
	"errors"
	"fmt"

	"github.com/packforge/packforge/pkg/manifest"
)

// ErrorClass classifies an installation error for caller retry and rollback
// decisions.
type ErrorClass string

const (
	// ErrorClassInvalid indicates bad input or a stale manifest reference.
	// Reported to the caller, never retried.
	ErrorClassInvalid ErrorClass = "invalid"

	// ErrorClassTransient indicates a failure that may succeed if the caller
	// retries the whole operation. The engine itself does not auto-retry.
	// Examples: feed unreachable, package download failed.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassBackend indicates an installer-technology failure such as
	// insufficient privilege or disk full. Triggers transaction rollback.
	ErrorClassBackend ErrorClass = "backend"

	// ErrorClassInconsistent indicates an invariant check failed, e.g. an
	// installation record referencing a pack absent from any manifest.
	// Surfaced loudly, never silently repaired.
	ErrorClassInconsistent ErrorClass = "inconsistent"
)

// InstallError is a classified error with installation context.
type InstallError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Generation is the feature band the operation targeted, if applicable.
	Generation manifest.Generation `json:"generation,omitempty"`

	// Workload is the workload ID involved, if applicable.
	Workload manifest.WorkloadID `json:"workload,omitempty"`

	// Pack is the concrete package involved, if applicable.
	Pack string `json:"pack,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Pack != "" {
		msg += fmt.Sprintf(" (pack=%s)", e.Pack)
	} else if e.Workload != "" {
		msg += fmt.Sprintf(" (workload=%s)", e.Workload)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *InstallError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is.
func (e *InstallError) Is(target error) bool {
	t, ok := target.(*InstallError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithGeneration adds generation context to the error.
func (e *InstallError) WithGeneration(gen manifest.Generation) *InstallError {
	e.Generation = gen
	return e
}

// WithWorkload adds workload context to the error.
func (e *InstallError) WithWorkload(id manifest.WorkloadID) *InstallError {
	e.Workload = id
	return e
}

// WithPack adds pack context to the error.
func (e *InstallError) WithPack(pkg manifest.ConcretePackage) *InstallError {
	e.Pack = pkg.String()
	return e
}

// NewInvalidError creates an invalid-input error.
func NewInvalidError(message string, err error) *InstallError {
	return &InstallError{Class: ErrorClassInvalid, Message: message, Err: err}
}

// NewTransientError creates a transient error.
func NewTransientError(message string, err error) *InstallError {
	return &InstallError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewBackendError creates a backend-failure error.
func NewBackendError(message string, err error) *InstallError {
	return &InstallError{Class: ErrorClassBackend, Message: message, Code: ErrCodeBackendFailed, Err: err}
}

// NewInconsistentError creates an invariant-violation error.
func NewInconsistentError(message string, err error) *InstallError {
	return &InstallError{Class: ErrorClassInconsistent, Message: message, Code: ErrCodeInconsistentState, Err: err}
}

// Common error codes.
const (
	ErrCodeUnknownWorkload   = "UNKNOWN_WORKLOAD"
	ErrCodeUnknownPack       = "UNKNOWN_PACK"
	ErrCodeFetchFailed       = "FETCH_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBackendFailed     = "BACKEND_FAILED"
	ErrCodeInconsistentState = "INCONSISTENT_STATE"
	ErrCodeLockHeld          = "LOCK_HELD"
	ErrCodeCancelled         = "CANCELLED"
)

// classifyResolution wraps expander and alias-resolver errors with the
// matching class and code. Other errors pass through unchanged.
func classifyResolution(err error) error {
	var uw *manifest.UnknownWorkloadError
	if errors.As(err, &uw) {
		e := NewInvalidError("workload not declared by any manifest", err)
		e.Code = ErrCodeUnknownWorkload
		e.Workload = uw.ID
		return e
	}
	var up *manifest.UnknownPackError
	if errors.As(err, &up) {
		e := NewInvalidError("pack not declared by any manifest", err)
		e.Code = ErrCodeUnknownPack
		return e
	}
	return err
}

// IsInvalid returns true if the error is classified as invalid input.
func IsInvalid(err error) bool {
	return hasClass(err, ErrorClassInvalid)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return hasClass(err, ErrorClassTransient)
}

// IsBackendFailure returns true if the error is an installer failure.
func IsBackendFailure(err error) bool {
	return hasClass(err, ErrorClassBackend)
}

// IsInconsistent returns true if the error is an invariant violation.
func IsInconsistent(err error) bool {
	return hasClass(err, ErrorClassInconsistent)
}

func hasClass(err error, class ErrorClass) bool {
	var e *InstallError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
