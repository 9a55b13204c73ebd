package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/bizflow/pkg/conditions"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/steps"
	"github.com/dukex/bizflow/pkg/template"
	"github.com/google/uuid"
)

// ActionCatalog reports which business actions are available to action steps.
type ActionCatalog interface {
	IsActionRegistered(actionType string) bool
}

type Workflow struct {
	persistence    persistence.Persistence
	actions        ActionCatalog
	expressions    *conditions.ExpressionEvaluator
	defaultTimeout int
	maxRetryCount  int
	backoff        models.BackoffStrategy
	maxRetryDelay  int
}

type WorkflowOption func(*Workflow)

// WithActionCatalog rejects action steps whose actionType is not registered.
func WithActionCatalog(catalog ActionCatalog) WorkflowOption {
	return func(w *Workflow) { w.actions = catalog }
}

// WithDefaultTimeout sets the timeout given to steps saved without one.
func WithDefaultTimeout(seconds int) WorkflowOption {
	return func(w *Workflow) {
		if seconds > 0 {
			w.defaultTimeout = seconds
		}
	}
}

// WithMaxRetryCount rejects steps declaring more retries than limit.
func WithMaxRetryCount(limit int) WorkflowOption {
	return func(w *Workflow) { w.maxRetryCount = limit }
}

// WithDefaultBackoff sets the retry backoff of steps saved without one.
func WithDefaultBackoff(strategy models.BackoffStrategy, maxDelaySeconds int) WorkflowOption {
	return func(w *Workflow) {
		w.backoff = strategy
		w.maxRetryDelay = maxDelaySeconds
	}
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		persistence:    persistence,
		expressions:    conditions.NewExpressionEvaluator(slog.Default()),
		defaultTimeout: models.DefaultStepTimeoutSeconds,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every workflow, optionally only those of owner.
func (w *Workflow) List(ctx context.Context, owner string) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	owner = strings.TrimSpace(owner)
	if owner == "" {
		return workflows, nil
	}

	filtered := make([]*models.Workflow, 0, len(workflows))
	for _, workflow := range workflows {
		if workflow.Owner == owner {
			filtered = append(filtered, workflow)
		}
	}

	return filtered, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create validates and stores a new workflow. An ID is generated when none is given.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	} else if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflow.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowExists, workflow.ID)
	} else if !persistence.IsWorkflowNotFound(err) {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	if err := w.Validate(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces the steps, variables and metadata of an existing workflow as a whole.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.Validate(workflow); err != nil {
		return nil, err
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.FetchByID(ctx, workflowID); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Validate applies step defaults and rejects definitions the runner could not
// execute: bad fields, unknown step types, missing required configuration,
// unsupported condition operators, malformed expressions, unparseable delays and
// unregistered actions. Values holding placeholders are only checked at run time.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	const op = "validateWorkflow"

	w.applyBackoff(workflow)
	workflow.ApplyDefaults(w.defaultTimeout)

	if err := workflow.Validate(); err != nil {
		return invalidDefinition(op, "INVALID_WORKFLOW", err)
	}

	for _, step := range workflow.Steps {
		if err := w.validateStep(step); err != nil {
			return invalidDefinition(op, "INVALID_STEP", fmt.Errorf("step %q: %w", step.ID, err))
		}
	}

	return nil
}

func (w *Workflow) applyBackoff(workflow *models.Workflow) {
	for i := range workflow.Steps {
		step := &workflow.Steps[i]

		if step.RetryBackoff == "" && w.backoff != "" {
			step.RetryBackoff = w.backoff
		}

		if step.MaxRetryDelaySeconds == 0 && step.RetryBackoff == models.BackoffExponential {
			step.MaxRetryDelaySeconds = w.maxRetryDelay
		}
	}
}

func (w *Workflow) validateStep(step models.Step) error {
	if w.maxRetryCount > 0 && step.RetryCount > w.maxRetryCount {
		return fmt.Errorf("retryCount %d exceeds the limit of %d", step.RetryCount, w.maxRetryCount)
	}

	config, err := step.TypedConfig()
	if err != nil {
		return err
	}

	switch c := config.(type) {
	case models.ConditionConfig:
		if err := conditions.ValidateConditions(step.Conditions); err != nil {
			return err
		}

		if c.Expression != "" && !template.HasPlaceholders(c.Expression) {
			return w.expressions.Compile(c.Expression)
		}
	case models.DelayConfig:
		if s, ok := c.Duration.(string); ok && template.HasPlaceholders(s) {
			return nil
		}

		if _, err := steps.ParseDuration(c.Duration); err != nil {
			return fmt.Errorf("delay duration: %w", err)
		}
	case models.ActionConfig:
		if w.actions != nil && !template.HasPlaceholders(c.ActionType) && !w.actions.IsActionRegistered(c.ActionType) {
			return fmt.Errorf("%w: %s", ErrUnknownAction, c.ActionType)
		}
	}

	if len(step.Conditions) > 0 && step.Type != models.StepTypeCondition {
		return errors.New("only condition steps may declare conditions")
	}

	return nil
}
