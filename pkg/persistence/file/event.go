package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
)

// EventRepository stores ingested webhook events.
type EventRepository struct {
	mu   sync.Mutex
	docs documents[models.WebhookEvent]
}

func NewEventRepository(root string) *EventRepository {
	return &EventRepository{docs: newDocuments[models.WebhookEvent](root, "events")}
}

func (r *EventRepository) SaveEvent(_ context.Context, event *models.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.docs.write(event.ID, event); err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.ID, err)
	}

	return nil
}

func (r *EventRepository) GetEvent(_ context.Context, id string) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, err := r.docs.read(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("event %s: %w", id, persistence.ErrEventNotFound)
	}

	return event, err
}
