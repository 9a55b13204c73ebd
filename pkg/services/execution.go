package services

import (
	"context"
	"fmt"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
)

// Execution reads execution records and their step logs.
type Execution struct {
	executions persistence.ExecutionRepository
}

func NewExecution(executions persistence.ExecutionRepository) *Execution {
	return &Execution{executions: executions}
}

func (e *Execution) FetchByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := e.executions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution == nil {
		return nil, ErrExecutionNotFound
	}

	return execution, nil
}

// Logs returns the step log of an execution in append order.
func (e *Execution) Logs(ctx context.Context, id string) ([]*models.ExecutionLog, error) {
	if _, err := e.FetchByID(ctx, id); err != nil {
		return nil, err
	}

	logs, err := e.executions.GetLogs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution logs: %w", err)
	}

	return logs, nil
}

// ListByWorkflow returns a workflow's executions, newest first.
func (e *Execution) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	executions, err := e.executions.GetByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}
