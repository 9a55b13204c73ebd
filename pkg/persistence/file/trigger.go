package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
)

// TriggerRepository stores triggers as JSON documents.
type TriggerRepository struct {
	mu   sync.RWMutex
	docs documents[models.Trigger]
}

func NewTriggerRepository(root string) *TriggerRepository {
	return &TriggerRepository{docs: newDocuments[models.Trigger](root, "triggers")}
}

func (tr *TriggerRepository) GetAll(_ context.Context) ([]*models.Trigger, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	return tr.docs.all()
}

func (tr *TriggerRepository) GetByID(_ context.Context, id string) (*models.Trigger, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	trigger, err := tr.docs.read(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewTriggerError("GetByID", id, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return nil, persistence.NewTriggerError("GetByID", id, err)
	}

	return trigger, nil
}

// GetByEventType returns every trigger bound to eventType, active or not.
func (tr *TriggerRepository) GetByEventType(ctx context.Context, eventType string) ([]*models.Trigger, error) {
	return tr.filter(ctx, func(t *models.Trigger) bool { return t.EventType == eventType })
}

func (tr *TriggerRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	return tr.filter(ctx, func(t *models.Trigger) bool { return t.WorkflowID == workflowID })
}

func (tr *TriggerRepository) filter(ctx context.Context, keep func(*models.Trigger) bool) ([]*models.Trigger, error) {
	all, err := tr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Trigger, 0, len(all))

	for _, trigger := range all {
		if keep(trigger) {
			matched = append(matched, trigger)
		}
	}

	return matched, nil
}

func (tr *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	if err := tr.docs.write(trigger.ID, trigger); err != nil {
		return persistence.NewTriggerError("Save", trigger.ID, err)
	}

	return nil
}

func (tr *TriggerRepository) Delete(_ context.Context, id string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	err := tr.docs.remove(id)
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewTriggerError("Delete", id, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	return nil
}
