// Package models defines the core domain models for the workflow execution engine.
package models

import (
	"fmt"
	"time"
)

// Workflow is an immutable template: an ordered list of steps plus variable defaults.
// It is replaced as a whole on update and never mutated while a run is in flight.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"                  validate:"required,min=3"`
	Description string         `json:"description,omitempty"`
	IsActive    bool           `json:"isActive"`
	Steps       []Step         `json:"steps"                 validate:"dive"`
	Variables   map[string]any `json:"variables,omitempty"`
	Owner       string         `json:"owner"                 validate:"required"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// StepByID returns the step with the given id.
func (w *Workflow) StepByID(id string) (Step, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return Step{}, false
}

// ApplyDefaults fills in zero-valued step policy fields.
func (w *Workflow) ApplyDefaults(defaultTimeoutSeconds int) {
	for i := range w.Steps {
		if w.Steps[i].TimeoutSeconds == 0 {
			w.Steps[i].TimeoutSeconds = defaultTimeoutSeconds
		}

		if w.Steps[i].RetryBackoff == "" {
			w.Steps[i].RetryBackoff = BackoffFixed
		}
	}
}

// Validate checks field constraints, step id uniqueness and every step's typed
// configuration. It is meant to run when a workflow is saved so malformed
// definitions never reach the runner.
func (w *Workflow) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	seen := make(map[string]struct{}, len(w.Steps))

	for _, step := range w.Steps {
		if step.ID == TriggerDataKey {
			return fmt.Errorf("%w: step id %q is reserved", ErrInvalidDefinition, step.ID)
		}

		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidDefinition, step.ID)
		}

		seen[step.ID] = struct{}{}

		if err := step.Validate(); err != nil {
			return err
		}
	}

	return nil
}
