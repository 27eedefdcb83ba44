// Package errors defines the classified error types of the gateway and
// their mapping policy: which failures retry, which surface to callers, and
// which are swallowed.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a gateway error.
type ErrorClass int

// Error classes.
const (
	// ClassUnknown indicates an unclassified error.
	ClassUnknown ErrorClass = iota
	// ClassInvalidRequest indicates bad request parameters.
	ClassInvalidRequest
	// ClassRateLimited indicates the caller exceeded its rate limit.
	ClassRateLimited
	// ClassNoHealthyBackend indicates routing found no usable model.
	ClassNoHealthyBackend
	// ClassBackendTimeout indicates a model backend timed out.
	ClassBackendTimeout
	// ClassBackendError indicates a model backend failed.
	ClassBackendError
	// ClassCacheError indicates a cache failure; logged and swallowed,
	// never user-visible.
	ClassCacheError
	// ClassInternal indicates an unexpected gateway failure.
	ClassInternal
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassInvalidRequest:
		return "invalid_request"
	case ClassRateLimited:
		return "rate_limited"
	case ClassNoHealthyBackend:
		return "no_healthy_backend"
	case ClassBackendTimeout:
		return "backend_timeout"
	case ClassBackendError:
		return "backend_error"
	case ClassCacheError:
		return "cache_error"
	case ClassInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Retryable reports whether the class is retried via the fallback chain.
func (c ErrorClass) Retryable() bool {
	return c == ClassBackendTimeout || c == ClassBackendError
}

// Error is a classified gateway error.
type Error struct {
	Class     ErrorClass
	Message   string
	RequestID string
	cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Class, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error.
func New(class ErrorClass, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(class ErrorClass, format string, args ...interface{}) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a class and message to an existing error. Returns nil when
// err is nil.
func Wrap(err error, class ErrorClass, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Message: message, cause: err}
}

// WithRequestID returns a copy carrying the request id for surfacing in
// internal-error responses.
func (e *Error) WithRequestID(id string) *Error {
	clone := *e
	clone.RequestID = id
	return &clone
}

// ClassOf extracts the class from an error chain, ClassUnknown when the
// chain carries no classified error.
func ClassOf(err error) ErrorClass {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ClassUnknown
}

// IsClass reports whether the error chain carries the given class.
func IsClass(err error, class ErrorClass) bool {
	return ClassOf(err) == class
}
