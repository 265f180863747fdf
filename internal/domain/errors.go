package domain

import "fmt"

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrPersistence indicates the backend rejected a write (constraint
// violation, schema mismatch...). Message is the human translation shown
// to the user; Code is the raw backend code when known.
type ErrPersistence struct {
	Operation string
	Code      string
	Message   string
	Err       error
}

func (e *ErrPersistence) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Operation, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates the request clashes with stored state, such as a
// resource that already exists.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrNotConfigured indicates the backend connection settings are missing.
type ErrNotConfigured struct {
	Setting string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("backend não configurado: %s ausente", e.Setting)
}
