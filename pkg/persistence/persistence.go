// Package persistence provides the storage abstraction for workflows, triggers,
// execution records and ingested events.
package persistence

import (
	"context"

	"github.com/dukex/bizflow/pkg/models"
)

// WorkflowStore is the read side the engine consumes.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	GetTriggers(ctx context.Context, eventType string) ([]*models.Trigger, error)
}

// ExecutionRecorder is the Execution Record Manager. UpdateExecution must be
// idempotent and must never move a terminal record back to running.
type ExecutionRecorder interface {
	CreateExecution(ctx context.Context, workflowID, actorID string) (string, error)
	UpdateExecution(ctx context.Context, executionID string, status models.ExecutionStatus, output any, errMsg string) error
	AppendLog(ctx context.Context, executionID, stepID string, event models.StepEvent) error
}

type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

type TriggerRepository interface {
	GetAll(ctx context.Context) ([]*models.Trigger, error)
	GetByID(ctx context.Context, id string) (*models.Trigger, error)
	GetByEventType(ctx context.Context, eventType string) ([]*models.Trigger, error)
	GetByWorkflowID(ctx context.Context, workflowID string) ([]*models.Trigger, error)
	Save(ctx context.Context, trigger *models.Trigger) error
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	ExecutionRecorder
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	GetByWorkflowID(ctx context.Context, workflowID string) ([]*models.Execution, error)
	GetLogs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error)
}

type EventRepository interface {
	SaveEvent(ctx context.Context, event *models.WebhookEvent) error
	GetEvent(ctx context.Context, id string) (*models.WebhookEvent, error)
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TriggerRepository() TriggerRepository
	ExecutionRepository() ExecutionRepository
	EventRepository() EventRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// Store adapts a Persistence to the WorkflowStore the engine reads from.
type Store struct {
	workflows WorkflowRepository
	triggers  TriggerRepository
}

func NewStore(p Persistence) *Store {
	return &Store{workflows: p.WorkflowRepository(), triggers: p.TriggerRepository()}
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return s.workflows.GetByID(ctx, id)
}

func (s *Store) GetTriggers(ctx context.Context, eventType string) ([]*models.Trigger, error) {
	return s.triggers.GetByEventType(ctx, eventType)
}
