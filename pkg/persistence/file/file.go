// Package file provides file-based persistence for workflows, triggers, execution
// records and ingested events. Each entity is a JSON document under the root.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/bizflow/pkg/persistence"
)

// Persistence implements persistence.Persistence using the file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	triggerRepo   *TriggerRepository
	executionRepo *ExecutionRepository
	eventRepo     *EventRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		triggerRepo:   NewTriggerRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
		eventRepo:     NewEventRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggerRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) EventRepository() persistence.EventRepository {
	return fp.eventRepo
}
