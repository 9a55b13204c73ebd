package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/google/uuid"
)

const executionColumns = `id, workflow_id, actor_id, status, output, error, started_at, completed_at`

// ExecutionRepository stores execution records and their step logs.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (er *ExecutionRepository) CreateExecution(ctx context.Context, workflowID, actorID string) (string, error) {
	id := er.newID()

	query := `INSERT INTO executions (id, workflow_id, actor_id, status, started_at) VALUES ($1, $2, $3, $4, $5)`

	_, err := er.db.ExecContext(ctx, query, id, workflowID, actorID, string(models.ExecutionStatusRunning), er.now())
	if err != nil {
		return "", persistence.NewExecutionError("CreateExecution", id, err)
	}

	return id, nil
}

// UpdateExecution only touches records that are still running, so late or repeated
// updates after completion are no-ops.
func (er *ExecutionRepository) UpdateExecution(
	ctx context.Context,
	executionID string,
	status models.ExecutionStatus,
	output any,
	errMsg string,
) error {
	payload, err := marshalJSON(output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	var completedAt *time.Time

	if status.IsTerminal() {
		now := er.now()
		completedAt = &now
	}

	query := `
		UPDATE executions
		SET status = $2, output = $3, error = $4, completed_at = $5
		WHERE id = $1 AND status = 'running'`

	result, err := er.db.ExecContext(ctx, query, executionID, string(status), payload, errMsg, completedAt)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", executionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = er.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)`, executionID).Scan(&exists)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", executionID, err)
	}

	if !exists {
		return persistence.NewExecutionError("UpdateExecution", executionID, persistence.ErrExecutionNotFound)
	}

	er.logger.DebugContext(ctx, "ignored update of finished execution",
		"execution_id", executionID, "status", status)

	return nil
}

func (er *ExecutionRepository) AppendLog(ctx context.Context, executionID, stepID string, event models.StepEvent) error {
	data, err := marshalJSON(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal log data: %w", err)
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, step_id, kind, attempt, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = er.db.ExecContext(ctx, query,
		er.newID(), executionID, stepID, string(event.Kind), event.Attempt, event.Message, data, er.now(),
	)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", executionID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(er.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC`

	rows, err := er.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer closeRows(ctx, er.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

func (er *ExecutionRepository) GetLogs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, execution_id, step_id, kind, attempt, message, data, created_at
		FROM execution_logs WHERE execution_id = $1 ORDER BY created_at, id`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer closeRows(ctx, er.logger, rows)

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			entry models.ExecutionLog
			kind  string
			data  []byte
		)

		err := rows.Scan(&entry.ID, &entry.ExecutionID, &entry.StepID, &kind,
			&entry.Event.Attempt, &entry.Event.Message, &data, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		entry.Event.Kind = models.StepEventKind(kind)

		if err := unmarshalJSON(data, &entry.Event.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log data: %w", err)
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution logs: %w", err)
	}

	return logs, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		status      string
		output      []byte
		completedAt sql.NullTime
	)

	err := row.Scan(&execution.ID, &execution.WorkflowID, &execution.ActorID, &status,
		&output, &execution.Error, &execution.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	if len(output) > 0 {
		var decoded any
		if err := unmarshalJSON(output, &decoded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}

		execution.Output = decoded
	}

	return &execution, nil
}
