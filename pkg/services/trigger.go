package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/bizflow/pkg/conditions"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

type Trigger struct {
	persistence persistence.Persistence
}

// NewTrigger creates a new trigger service.
func NewTrigger(persistence persistence.Persistence) *Trigger {
	return &Trigger{persistence: persistence}
}

// List returns every trigger, or only the triggers of workflowID when it is set.
func (t *Trigger) List(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	repo := t.persistence.TriggerRepository()

	var (
		triggers []*models.Trigger
		err      error
	)

	if workflowID == "" {
		triggers, err = repo.GetAll(ctx)
	} else {
		triggers, err = repo.GetByWorkflowID(ctx, workflowID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	return triggers, nil
}

// FetchByID retrieves a trigger by its ID.
func (t *Trigger) FetchByID(ctx context.Context, id string) (*models.Trigger, error) {
	trigger, err := t.persistence.TriggerRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if trigger == nil {
		return nil, ErrTriggerNotFound
	}

	return trigger, nil
}

// Create validates and stores a trigger for an existing workflow.
func (t *Trigger) Create(ctx context.Context, trigger *models.Trigger) (*models.Trigger, error) {
	if trigger == nil {
		return nil, ErrTriggerNil
	}

	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	} else if _, err := t.persistence.TriggerRepository().GetByID(ctx, trigger.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTriggerExists, trigger.ID)
	} else if !persistence.IsTriggerNotFound(err) {
		return nil, fmt.Errorf("failed to create trigger: %w", err)
	}

	if err := ValidateTrigger(trigger); err != nil {
		return nil, err
	}

	if _, err := t.persistence.WorkflowRepository().GetByID(ctx, trigger.WorkflowID); err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, NewValidationError("createTrigger", "UNKNOWN_WORKFLOW",
				fmt.Sprintf("workflow %s does not exist", trigger.WorkflowID), ErrUnknownWorkflow)
		}

		return nil, fmt.Errorf("failed to create trigger: %w", err)
	}

	now := time.Now().UTC()
	trigger.CreatedAt = now
	trigger.UpdatedAt = now

	if err := t.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to create trigger: %w", err)
	}

	return trigger, nil
}

// Delete removes a trigger by its ID.
func (t *Trigger) Delete(ctx context.Context, id string) error {
	if _, err := t.FetchByID(ctx, id); err != nil {
		return err
	}

	if err := t.persistence.TriggerRepository().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	return nil
}

// ValidateTrigger checks a trigger's fields, schedule, condition operators and payload schema.
func ValidateTrigger(trigger *models.Trigger) error {
	const op = "validateTrigger"

	if err := trigger.Validate(); err != nil {
		return invalidDefinition(op, "INVALID_TRIGGER", err)
	}

	if err := conditions.ValidateConditions(trigger.Conditions); err != nil {
		return invalidDefinition(op, "INVALID_CONDITION", err)
	}

	if len(trigger.PayloadSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(trigger.PayloadSchema)); err != nil {
			return invalidDefinition(op, "INVALID_PAYLOAD_SCHEMA", fmt.Errorf("payload schema: %w", err))
		}
	}

	return nil
}
