package pipeline

import (
	"errors"
	"fmt"
)

// NotFoundError means the source object named by the task does not exist.
// Deterministic, never retried.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source object not found: %s", e.Key)
}

// MalformedInputError means the object exists but cannot be processed
// (corrupt or unsupported media). Deterministic, never retried.
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed input: %s", e.Reason)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// TransientResourceError marks memory or timeout-like failures that are
// expected to clear on a later attempt.
type TransientResourceError struct {
	Err error
}

func (e *TransientResourceError) Error() string {
	return fmt.Sprintf("transient resource failure: %v", e.Err)
}

func (e *TransientResourceError) Unwrap() error { return e.Err }

// ExternalServiceError marks an unavailable collaborator (metadata tool,
// geocoder). Retryable for required stages, swallowed for optional ones.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsMalformed reports whether err is (or wraps) a MalformedInputError.
func IsMalformed(err error) bool {
	var target *MalformedInputError
	return errors.As(err, &target)
}

// IsTransient reports whether err is (or wraps) a TransientResourceError.
func IsTransient(err error) bool {
	var target *TransientResourceError
	return errors.As(err, &target)
}

// IsExternal reports whether err is (or wraps) an ExternalServiceError.
func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// Retryable reports whether the failure class permits another attempt.
// Not-found and malformed-input failures are deterministic and must go
// straight to the failed state instead of burning the attempt budget.
func Retryable(err error) bool {
	return !IsNotFound(err) && !IsMalformed(err)
}

// Classify returns a stable label for the failure class, used in metrics
// and failure-reason reporting.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsNotFound(err):
		return "not_found"
	case IsMalformed(err):
		return "malformed_input"
	case IsTransient(err):
		return "transient_resource"
	case IsExternal(err):
		return "external_service"
	default:
		return "unknown"
	}
}
