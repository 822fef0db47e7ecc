package chat

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed caller input. Its message is safe to show
// to clients.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// GenerationError reports that the generation backend could not produce a
// reply. Cause is for operators only.
type GenerationError struct {
	Backend  string
	Attempts int
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation via %s failed after %d attempt(s): %v", e.Backend, e.Attempts, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// PersistenceError reports a failed storage operation.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("message store %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError wraps cause unless it is nil.
func NewPersistenceError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &PersistenceError{Op: op, Cause: cause}
}

// ErrUnauthenticated is returned when a route requiring an actor has none.
var ErrUnauthenticated = &AuthenticationError{Reason: "authentication required"}

// AuthenticationError reports a missing or invalid actor identity.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsGeneration reports whether err carries a GenerationError.
func IsGeneration(err error) bool {
	var target *GenerationError
	return errors.As(err, &target)
}

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

// IsAuthentication reports whether err carries an AuthenticationError.
func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}
