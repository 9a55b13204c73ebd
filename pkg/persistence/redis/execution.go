// Package redis keeps execution records and their step logs in Redis, for
// deployments where several workers share in-flight execution state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "bizflow:"
	maxWatchRetries  = 5
)

// ExecutionRepository implements persistence.ExecutionRepository.
type ExecutionRepository struct {
	client    goredis.UniversalClient
	keyPrefix string
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutionRepository wraps an existing client. An empty keyPrefix uses "bizflow:".
func NewExecutionRepository(client goredis.UniversalClient, keyPrefix string, logger *slog.Logger) *ExecutionRepository {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &ExecutionRepository{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (r *ExecutionRepository) executionKey(id string) string {
	return r.keyPrefix + "execution:" + id
}

func (r *ExecutionRepository) logsKey(id string) string {
	return r.keyPrefix + "execution:" + id + ":logs"
}

func (r *ExecutionRepository) workflowKey(workflowID string) string {
	return r.keyPrefix + "workflow:" + workflowID + ":executions"
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, workflowID, actorID string) (string, error) {
	execution := models.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		ActorID:    actorID,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  r.now(),
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.executionKey(execution.ID), data, 0)
	pipe.ZAdd(ctx, r.workflowKey(workflowID), goredis.Z{
		Score:  float64(execution.StartedAt.UnixNano()),
		Member: execution.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", persistence.NewExecutionError("CreateExecution", execution.ID, err)
	}

	return execution.ID, nil
}

// UpdateExecution applies the change under WATCH so a concurrent terminal update
// cannot be overwritten.
func (r *ExecutionRepository) UpdateExecution(
	ctx context.Context,
	executionID string,
	status models.ExecutionStatus,
	output any,
	errMsg string,
) error {
	key := r.executionKey(executionID)

	update := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return persistence.ErrExecutionNotFound
		}

		if err != nil {
			return err
		}

		var execution models.Execution
		if err := json.Unmarshal(data, &execution); err != nil {
			return fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		if execution.Status.IsTerminal() || !execution.Status.CanTransitionTo(status) {
			r.logger.DebugContext(ctx, "ignored update of finished execution",
				"execution_id", executionID, "status", status)

			return nil
		}

		execution.Status = status
		execution.Output = output
		execution.Error = errMsg

		if status.IsTerminal() {
			completed := r.now()
			execution.CompletedAt = &completed
		}

		updated, err := json.Marshal(execution)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)

			return nil
		})

		return err
	}

	for range maxWatchRetries {
		err := r.client.Watch(ctx, update, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}

		if err != nil {
			return persistence.NewExecutionError("UpdateExecution", executionID, err)
		}

		return nil
	}

	return persistence.NewExecutionError("UpdateExecution", executionID, goredis.TxFailedErr)
}

func (r *ExecutionRepository) AppendLog(ctx context.Context, executionID, stepID string, event models.StepEvent) error {
	entry := models.ExecutionLog{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		StepID:      stepID,
		Event:       event,
		CreatedAt:   r.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	if err := r.client.RPush(ctx, r.logsKey(executionID), data).Err(); err != nil {
		return persistence.NewExecutionError("AppendLog", executionID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	data, err := r.client.Get(ctx, r.executionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &execution, nil
}

// GetByWorkflowID returns the most recent executions first.
func (r *ExecutionRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	ids, err := r.client.ZRevRange(ctx, r.workflowKey(workflowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := r.GetByID(ctx, id)
		if persistence.IsExecutionNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (r *ExecutionRepository) GetLogs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	raw, err := r.client.LRange(ctx, r.logsKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read execution logs: %w", err)
	}

	logs := make([]*models.ExecutionLog, 0, len(raw))

	for _, item := range raw {
		var entry models.ExecutionLog
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}

		logs = append(logs, &entry)
	}

	return logs, nil
}
