// Package errors provides standardized error handling for HSP components.
// It includes error classification, standard error variables, and helpers
// for consistent error wrapping across the mesh node.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or malformed messages
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should halt startup
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Connection and transport errors
	ErrNotConnected      = errors.New("not connected to broker")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrPublishFailed     = errors.New("publish failed")
	ErrSubscribeFailed   = errors.New("subscribe failed")

	// Envelope and alignment errors
	ErrInvalidEnvelope    = errors.New("invalid envelope")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedJSON      = errors.New("malformed JSON")
	ErrMissingCorrelation = errors.New("missing correlation id")

	// Discovery and capability errors
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrCapabilityStale    = errors.New("capability advertisement stale")

	// Memory and persistence errors
	ErrRecordNotFound     = errors.New("record not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrKeyNotFound        = errors.New("key not found")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Dependency errors raised by constructors
	ErrMissingDependency = errors.New("missing required dependency")
)

// ClassifiedError wraps an error with its classification and origin
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "temporary", "unavailable", "busy"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error should halt startup
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrMissingDependency)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidEnvelope) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrMalformedJSON) ||
		errors.Is(err, ErrMissingCorrelation)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorTransient, err, component, method,
		fmt.Sprintf("%s.%s: %s failed: %v", component, method, action, err))
}

// WrapInvalid wraps an error as invalid input with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, err, component, method,
		fmt.Sprintf("%s.%s: %s failed: %v", component, method, action, err))
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorFatal, err, component, method,
		fmt.Sprintf("%s.%s: %s failed: %v", component, method, action, err))
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers do not need both this package and stdlib errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
