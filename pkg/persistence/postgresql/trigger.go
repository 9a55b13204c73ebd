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
)

const triggerColumns = `id, workflow_id, event_type, is_active, conditions, payload_schema, schedule, created_at, updated_at`

// TriggerRepository handles trigger-related database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

func (tr *TriggerRepository) GetAll(ctx context.Context) ([]*models.Trigger, error) {
	return tr.query(ctx, `SELECT `+triggerColumns+` FROM triggers ORDER BY created_at`)
}

func (tr *TriggerRepository) GetByID(ctx context.Context, id string) (*models.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers WHERE id = $1`

	trigger, err := scanTrigger(tr.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewTriggerError("GetByID", id, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return nil, persistence.NewTriggerError("GetByID", id, err)
	}

	return trigger, nil
}

// GetByEventType returns every trigger for the event type, active or not.
func (tr *TriggerRepository) GetByEventType(ctx context.Context, eventType string) ([]*models.Trigger, error) {
	return tr.query(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE event_type = $1 ORDER BY created_at`, eventType)
}

func (tr *TriggerRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	return tr.query(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
}

func (tr *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	if trigger.ID == "" {
		return persistence.NewTriggerError("Save", trigger.ID, persistence.ErrInvalidID)
	}

	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	conditions, err := marshalJSON(trigger.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	schema, err := marshalJSON(trigger.PayloadSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal payload schema: %w", err)
	}

	query := `
		INSERT INTO triggers (` + triggerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			event_type = EXCLUDED.event_type,
			is_active = EXCLUDED.is_active,
			conditions = EXCLUDED.conditions,
			payload_schema = EXCLUDED.payload_schema,
			schedule = EXCLUDED.schedule,
			updated_at = EXCLUDED.updated_at`

	_, err = tr.db.ExecContext(ctx, query,
		trigger.ID, trigger.WorkflowID, trigger.EventType, trigger.IsActive,
		conditions, schema, trigger.Schedule, trigger.CreatedAt, trigger.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTriggerError("Save", trigger.ID, err)
	}

	return nil
}

func (tr *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := tr.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewTriggerError("Delete", id, persistence.ErrTriggerNotFound)
	}

	return nil
}

func (tr *TriggerRepository) query(ctx context.Context, query string, args ...any) ([]*models.Trigger, error) {
	rows, err := tr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer closeRows(ctx, tr.logger, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}

		triggers = append(triggers, trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate triggers: %w", err)
	}

	return triggers, nil
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		trigger    models.Trigger
		conditions []byte
		schema     []byte
	)

	err := row.Scan(
		&trigger.ID, &trigger.WorkflowID, &trigger.EventType, &trigger.IsActive,
		&conditions, &schema, &trigger.Schedule, &trigger.CreatedAt, &trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(conditions, &trigger.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	if err := unmarshalJSON(schema, &trigger.PayloadSchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload schema: %w", err)
	}

	return &trigger, nil
}
