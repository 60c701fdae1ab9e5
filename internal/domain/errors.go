package domain

import "fmt"

// Error types for consistent error handling across the service. The takeoff
// engine returns typed errors and never a partial result: a validation or
// lookup failure aborts the whole computation.

// ErrNotFound indicates a resource was not found (or is inactive where an
// active one is required).
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad caller input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConfiguration indicates missing setup rather than bad user input,
// e.g. a proposal type with zero active composition mappings.
type ErrConfiguration struct {
	Subject string
	Message string
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Subject, e.Message)
}

// ErrConsistency indicates an internal invariant violation: a composition's
// cached total diverging from the sum of its items beyond rounding epsilon.
// Detection is diagnostic (price audit), not a normal-path error.
type ErrConsistency struct {
	CompositionID string
	Cached        float64
	Derived       float64
}

func (e *ErrConsistency) Error() string {
	return fmt.Sprintf("composition %s cached total %.6f diverges from derived %.6f",
		e.CompositionID, e.Cached, e.Derived)
}

// ErrConflict indicates a concurrent-write clash, e.g. an optimistic version
// check failing on the cached-total update, or a duplicate unique code.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
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

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrUnauthorized indicates a missing or invalid access token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the caller lacks the role for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}
