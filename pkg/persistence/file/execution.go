package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/google/uuid"
)

type executionDocument struct {
	Execution models.Execution     `json:"execution"`
	Logs      []models.ExecutionLog `json:"logs"`
}

// ExecutionRepository keeps each execution record and its log in one document.
type ExecutionRepository struct {
	mu   sync.Mutex
	docs documents[executionDocument]
	now  func() time.Time
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{
		docs: newDocuments[executionDocument](root, "executions"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (er *ExecutionRepository) CreateExecution(_ context.Context, workflowID, actorID string) (string, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	doc := &executionDocument{
		Execution: models.Execution{
			ID:         uuid.NewString(),
			WorkflowID: workflowID,
			ActorID:    actorID,
			Status:     models.ExecutionStatusRunning,
			StartedAt:  er.now(),
		},
		Logs: []models.ExecutionLog{},
	}

	if err := er.docs.write(doc.Execution.ID, doc); err != nil {
		return "", persistence.NewExecutionError("CreateExecution", doc.Execution.ID, err)
	}

	return doc.Execution.ID, nil
}

// UpdateExecution ignores transitions out of a terminal status.
func (er *ExecutionRepository) UpdateExecution(_ context.Context, executionID string, status models.ExecutionStatus, output any, errMsg string) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	doc, err := er.load("UpdateExecution", executionID)
	if err != nil {
		return err
	}

	current := doc.Execution.Status
	if current == status && current.IsTerminal() {
		return nil
	}

	if !current.CanTransitionTo(status) {
		return nil
	}

	doc.Execution.Status = status
	doc.Execution.Output = output
	doc.Execution.Error = errMsg

	if status.IsTerminal() {
		completed := er.now()
		doc.Execution.CompletedAt = &completed
	}

	if err := er.docs.write(executionID, doc); err != nil {
		return persistence.NewExecutionError("UpdateExecution", executionID, err)
	}

	return nil
}

func (er *ExecutionRepository) AppendLog(_ context.Context, executionID, stepID string, event models.StepEvent) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	doc, err := er.load("AppendLog", executionID)
	if err != nil {
		return err
	}

	doc.Logs = append(doc.Logs, models.ExecutionLog{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		StepID:      stepID,
		Event:       event,
		CreatedAt:   er.now(),
	})

	if err := er.docs.write(executionID, doc); err != nil {
		return persistence.NewExecutionError("AppendLog", executionID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	doc, err := er.load("GetByID", id)
	if err != nil {
		return nil, err
	}

	return &doc.Execution, nil
}

func (er *ExecutionRepository) GetByWorkflowID(_ context.Context, workflowID string) ([]*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	docs, err := er.docs.all()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, doc := range docs {
		if doc.Execution.WorkflowID == workflowID {
			execution := doc.Execution
			executions = append(executions, &execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

func (er *ExecutionRepository) GetLogs(_ context.Context, executionID string) ([]*models.ExecutionLog, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	doc, err := er.load("GetLogs", executionID)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.ExecutionLog, len(doc.Logs))
	for i := range doc.Logs {
		logs[i] = &doc.Logs[i]
	}

	return logs, nil
}

func (er *ExecutionRepository) load(op, executionID string) (*executionDocument, error) {
	doc, err := er.docs.read(executionID)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewExecutionError(op, executionID, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError(op, executionID, err)
	}

	return doc, nil
}
