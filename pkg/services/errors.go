// Package services provides the management operations behind the API: workflow
// and trigger CRUD with save-time validation, and execution lookups.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrWorkflowNil     = errors.New("workflow cannot be nil")
	ErrTriggerNil      = errors.New("trigger cannot be nil")
	ErrUnknownAction   = errors.New("action type is not registered")
	ErrUnknownWorkflow = errors.New("trigger references an unknown workflow")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowExists = errors.New("workflow already exists")
	ErrTriggerExists  = errors.New("trigger already exists")
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	// ErrTriggerNotFound is returned when a trigger is not found.
	ErrTriggerNotFound = persistence.ErrTriggerNotFound
	// ErrExecutionNotFound is returned when an execution record is not found.
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, models.ErrInvalidDefinition) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrTriggerNil) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrUnknownWorkflow)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowExists) ||
		errors.Is(err, ErrTriggerExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func invalidDefinition(op, code string, err error) *ServiceError {
	if !errors.Is(err, models.ErrInvalidDefinition) {
		err = fmt.Errorf("%w: %w", models.ErrInvalidDefinition, err)
	}

	return NewValidationError(op, code, err.Error(), err)
}
