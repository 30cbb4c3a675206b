package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCancellable is returned when cancelling a session that already finished.
	ErrNotCancellable = errors.New("session is not cancellable")

	// ErrShuttingDown is returned by Start once Shutdown has begun.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// ValidationError is returned synchronously by Start for unusable input.
// No session is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
