package models

import (
	"fmt"
	"time"
)

// ScheduleEventType is the event type carried by triggers fired by the scheduler.
const ScheduleEventType = "schedule"

// Trigger binds an event type plus payload conditions to the automatic execution of
// a workflow.
type Trigger struct {
	ID            string               `json:"id"`
	WorkflowID    string               `json:"workflowId"              validate:"required"`
	EventType     string               `json:"eventType"               validate:"required"`
	IsActive      bool                 `json:"isActive"`
	Conditions    map[string]Condition `json:"conditions,omitempty"    validate:"omitempty,dive"`
	PayloadSchema map[string]any       `json:"payloadSchema,omitempty"`
	Schedule      string               `json:"schedule,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// IsScheduled reports whether the trigger is fired by the cron scheduler.
func (t *Trigger) IsScheduled() bool {
	return t.EventType == ScheduleEventType && t.Schedule != ""
}

// Validate checks field constraints and, for scheduled triggers, the cron expression.
func (t *Trigger) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if t.EventType == ScheduleEventType {
		if _, err := ParseSchedule(t.Schedule); err != nil {
			return fmt.Errorf("%w: schedule %q: %w", ErrInvalidDefinition, t.Schedule, err)
		}
	}

	return nil
}
