package memory

import (
	"errors"
)

// Error represents an engine error with a category.
type Error struct {
	Type    ErrorType
	Message string
	Err     error // Underlying cause, if any
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeValidation           ErrorType = "validation"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeAccessDenied         ErrorType = "access_denied"
	ErrorTypeEmbeddingUnavailable ErrorType = "embedding_unavailable"
	ErrorTypeDimensionMismatch    ErrorType = "dimension_mismatch"
	ErrorTypePersistence          ErrorType = "persistence"
	ErrorTypeShutdown             ErrorType = "shutdown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func isType(err error, t ErrorType) bool {
	var memErr *Error
	if errors.As(err, &memErr) {
		return memErr.Type == t
	}
	return false
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFound checks if an error reports a missing entity.
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsAccessDenied checks if an error is an authorization failure.
func IsAccessDenied(err error) bool { return isType(err, ErrorTypeAccessDenied) }

// IsEmbeddingUnavailable checks if an error is an embedding provider failure.
func IsEmbeddingUnavailable(err error) bool { return isType(err, ErrorTypeEmbeddingUnavailable) }

// IsDimensionMismatch checks if an error reports vectors of different lengths.
func IsDimensionMismatch(err error) bool { return isType(err, ErrorTypeDimensionMismatch) }

// IsPersistenceError checks if an error came from the persistence adapter.
func IsPersistenceError(err error) bool { return isType(err, ErrorTypePersistence) }

// IsShutdown checks if an error was caused by the engine shutting down.
func IsShutdown(err error) bool { return isType(err, ErrorTypeShutdown) }

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message, Err: err}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: message}
}

// NewAccessDeniedError creates a new access-denied error.
func NewAccessDeniedError(message string, err error) *Error {
	return &Error{Type: ErrorTypeAccessDenied, Message: message, Err: err}
}

// NewEmbeddingUnavailableError creates a new embedding provider error.
func NewEmbeddingUnavailableError(message string, err error) *Error {
	return &Error{Type: ErrorTypeEmbeddingUnavailable, Message: message, Err: err}
}

// NewDimensionMismatchError creates a new dimension mismatch error.
func NewDimensionMismatchError(message string) *Error {
	return &Error{Type: ErrorTypeDimensionMismatch, Message: message}
}

// NewPersistenceError wraps an adapter failure. Errors that are already typed
// pass through unchanged.
func NewPersistenceError(message string, err error) error {
	var memErr *Error
	if errors.As(err, &memErr) {
		return err
	}
	return &Error{Type: ErrorTypePersistence, Message: message, Err: err}
}

// NewShutdownError creates an error returned after the engine stopped.
func NewShutdownError(message string) *Error {
	return &Error{Type: ErrorTypeShutdown, Message: message}
}
