// Package protocol defines the error taxonomy and the collaborator contracts the
// engine consumes.
package protocol

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed step or trigger definition. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks bad interpolated input to a step. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks a network failure or timeout. Retried per the step policy.
	ErrTransient = errors.New("transient error")
	// ErrFatal aborts the run immediately without retrying.
	ErrFatal = errors.New("fatal error")
	// ErrNotFound marks an unknown workflow or trigger.
	ErrNotFound = errors.New("not found")
	// ErrCancelled marks a run aborted by its caller.
	ErrCancelled = errors.New("cancelled")
)

// StepError ties a classified failure to the step that produced it.
type StepError struct {
	StepID string
	Kind   error
	Err    error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %s: %v", e.StepID, e.Kind)
	}

	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("step %s: %v", e.StepID, e.Err)
	}

	return fmt.Sprintf("step %s: %v: %v", e.StepID, e.Kind, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string {
	return fmt.Sprintf("%v: %v", e.kind, e.err)
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.kind, e.err}
}

func classify(kind, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, kind) {
		return err
	}

	return &classifiedError{kind: kind, err: err}
}

// Transient marks err as retryable.
func Transient(err error) error { return classify(ErrTransient, err) }

// Validation marks err as bad step input.
func Validation(err error) error { return classify(ErrValidation, err) }

// Configuration marks err as a malformed definition.
func Configuration(err error) error { return classify(ErrConfiguration, err) }

// Fatal marks err as aborting the run.
func Fatal(err error) error { return classify(ErrFatal, err) }

// Transientf formats a transient error.
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// Validationf formats a validation error.
func Validationf(format string, args ...any) error {
	return Validation(fmt.Errorf(format, args...))
}

// Configurationf formats a configuration error.
func Configurationf(format string, args ...any) error {
	return Configuration(fmt.Errorf(format, args...))
}

// IsRetryable reports whether another attempt may succeed. Unclassified errors and
// deadline expiry are retryable; validation, configuration, fatal and cancellation
// errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrFatal),
		errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// Kind returns the taxonomy sentinel err belongs to, ErrTransient for anything
// unclassified.
func Kind(err error) error {
	for _, kind := range []error{ErrCancelled, ErrConfiguration, ErrValidation, ErrFatal, ErrNotFound, ErrTransient} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}

	return ErrTransient
}
