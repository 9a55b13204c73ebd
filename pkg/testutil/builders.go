// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/google/uuid"
)

// NewWorkflow creates an active test Workflow without steps that can be overridden.
func NewWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()

	workflow := &models.Workflow{
		ID:        uuid.New().String(),
		Name:      "Test Workflow",
		IsActive:  true,
		Steps:     []models.Step{},
		Variables: map[string]any{},
		Owner:     "user-1",
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithSteps sets the workflow steps in execution order.
func WithSteps(steps ...models.Step) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Steps = steps
	}
}

// WithVariables sets the workflow variable defaults.
func WithVariables(variables map[string]any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Variables = variables
	}
}

// Inactive marks the workflow inactive.
func Inactive() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.IsActive = false
	}
}

// NewStep creates a test email Step with a 30 second timeout and no retries.
func NewStep(id string, overrides ...func(*models.Step)) models.Step {
	step := models.Step{
		ID:             id,
		Name:           "Step " + id,
		Type:           models.StepTypeEmail,
		Configuration:  map[string]any{"to": "ops@example.com", "subject": "hello"},
		TimeoutSeconds: models.DefaultStepTimeoutSeconds,
		RetryBackoff:   models.BackoffFixed,
	}

	for _, override := range overrides {
		override(&step)
	}

	return step
}

// WithType sets the step type and its configuration.
func WithType(stepType models.StepType, config map[string]any) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = stepType
		s.Configuration = config
	}
}

// WithRetry sets the retry count and fixed delay in seconds.
func WithRetry(count, delaySeconds int) func(*models.Step) {
	return func(s *models.Step) {
		s.RetryCount = count
		s.RetryDelaySeconds = delaySeconds
	}
}

// WithTimeout sets the per-attempt timeout in seconds.
func WithTimeout(seconds int) func(*models.Step) {
	return func(s *models.Step) {
		s.TimeoutSeconds = seconds
	}
}

// WithConditions sets the conditions of a condition step.
func WithConditions(conditions map[string]models.Condition) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = models.StepTypeCondition
		s.Configuration = nil
		s.Conditions = conditions
	}
}

// Disabled marks the step disabled.
func Disabled() func(*models.Step) {
	return func(s *models.Step) {
		s.Disabled = true
	}
}

// NewTrigger creates an active test Trigger for workflowID and eventType.
func NewTrigger(workflowID, eventType string, overrides ...func(*models.Trigger)) *models.Trigger {
	now := time.Now().UTC()

	trigger := &models.Trigger{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		EventType:  eventType,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, override := range overrides {
		override(trigger)
	}

	return trigger
}

// WithTriggerConditions sets the payload conditions of a trigger.
func WithTriggerConditions(conditions map[string]models.Condition) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Conditions = conditions
	}
}

// WithSchedule turns the trigger into a cron-scheduled trigger.
func WithSchedule(expr string) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.EventType = models.ScheduleEventType
		t.Schedule = expr
	}
}

// WithTriggerActive sets whether the trigger is active.
func WithTriggerActive(active bool) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.IsActive = active
	}
}
