package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/google/uuid"
)

// EventRepository records ingested webhook events.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// SaveEvent assigns an ID and receive time when missing.
func (r *EventRepository) SaveEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO webhook_events (id, actor_id, event_type, entity_id, entity_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.ActorID, event.EventType, event.EntityID, event.EntityType, payload, event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.ID, err)
	}

	return nil
}

func (r *EventRepository) GetEvent(ctx context.Context, id string) (*models.WebhookEvent, error) {
	query := `
		SELECT id, actor_id, event_type, entity_id, entity_type, payload, received_at
		FROM webhook_events WHERE id = $1`

	var (
		event   models.WebhookEvent
		payload []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID, &event.ActorID, &event.EventType, &event.EntityID, &event.EntityType, &payload, &event.ReceivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, persistence.ErrEventNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}

	if err := unmarshalJSON(payload, &event.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &event, nil
}
