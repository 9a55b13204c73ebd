package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/google/uuid"
)

// Engine is the public surface of the workflow engine. None of its methods
// panic; failures are reported through ExecutionResult.
type Engine struct {
	store   persistence.WorkflowStore
	runner  *Runner
	matcher *TriggerMatcher
	events  persistence.EventRepository
	logger  *slog.Logger
}

type EngineOption func(*Engine)

// WithEventRepository stores ingested events before their triggers are checked.
func WithEventRepository(repo persistence.EventRepository) EngineOption {
	return func(e *Engine) { e.events = repo }
}

func NewEngine(
	store persistence.WorkflowStore,
	runner *Runner,
	matcher *TriggerMatcher,
	logger *slog.Logger,
	opts ...EngineOption,
) *Engine {
	if matcher == nil {
		matcher = NewTriggerMatcher(nil, logger)
	}

	e := &Engine{
		store:   store,
		runner:  runner,
		matcher: matcher,
		logger:  logger.With("module", "workflow_engine"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ExecuteWorkflow loads and runs a workflow, recording the execution.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]any, actorID string) models.ExecutionResult {
	return e.execute(ctx, workflowID, input, actorID, RunOptions{Persist: true})
}

// TestWorkflow runs a workflow without creating or updating an execution record.
// Steps are dispatched exactly as in ExecuteWorkflow, so their external side
// effects still happen.
func (e *Engine) TestWorkflow(ctx context.Context, workflowID string, input map[string]any, actorID string) models.ExecutionResult {
	return e.execute(ctx, workflowID, input, actorID, RunOptions{Persist: false, DryRun: true})
}

func (e *Engine) execute(
	ctx context.Context,
	workflowID string,
	input map[string]any,
	actorID string,
	opts RunOptions,
) (result models.ExecutionResult) {
	logger := e.logger.With("workflow_id", workflowID)
	defer recoverResult(&result, logger)

	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err == nil && wf == nil {
		err = persistence.ErrWorkflowNotFound
	}

	if err != nil {
		if persistence.IsWorkflowNotFound(err) || errors.Is(err, protocol.ErrNotFound) {
			logger.Info("Workflow not found")
		} else {
			logger.Error("Failed to load workflow", "error", err)
		}

		result = models.FailedResult("", fmt.Sprintf("loading workflow %s: %v", workflowID, err))
		result.DryRun = opts.DryRun

		return result
	}

	return e.runner.Run(ctx, wf, input, actorID, opts)
}

// OnEvent runs the workflow of every trigger matching the event and returns one
// result per match, in match order. Matched workflows run concurrently, each with
// its own context and copy of payload.
func (e *Engine) OnEvent(ctx context.Context, eventType string, payload map[string]any) (results []models.ExecutionResult) {
	logger := e.logger.With("event_type", eventType)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Recovered from panic while matching triggers", "panic", p, "stack", string(debug.Stack()))

			results = nil
		}
	}()

	triggers, err := e.store.GetTriggers(ctx, eventType)
	if err != nil {
		logger.Error("Failed to load triggers", "error", err)

		return nil
	}

	matched := e.matcher.Match(eventType, payload, triggers)
	if len(matched) == 0 {
		return nil
	}

	results = make([]models.ExecutionResult, len(matched))

	var wg sync.WaitGroup

	for i, trigger := range matched {
		wg.Add(1)

		go func() {
			defer wg.Done()

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			results[i] = e.fire(runCtx, trigger, maps.Clone(payload))
		}()
	}

	wg.Wait()

	return results
}

func (e *Engine) fire(ctx context.Context, trigger *models.Trigger, payload map[string]any) models.ExecutionResult {
	e.logger.Debug("Firing trigger", "trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

	return e.execute(ctx, trigger.WorkflowID, payload, "trigger:"+trigger.ID, RunOptions{Persist: true})
}

// CheckWorkflowTriggers fans an event out to its matching workflows and waits
// for them to finish. Outcomes are logged, not returned.
func (e *Engine) CheckWorkflowTriggers(ctx context.Context, eventType string, payload map[string]any) {
	results := e.OnEvent(ctx, eventType, payload)

	var failed int

	for _, result := range results {
		if !result.Success {
			failed++

			e.logger.Warn("Triggered workflow failed", "event_type", eventType, "execution_id", result.ExecutionID, "error", result.Error)
		}
	}

	e.logger.Info("Checked workflow triggers", "event_type", eventType, "runs", len(results), "failed", failed)
}

// CreateWebhookEvent ingests an external business event and checks its triggers.
func (e *Engine) CreateWebhookEvent(
	ctx context.Context,
	actorID, eventType, entityID, entityType string,
	payload map[string]any,
) error {
	return e.IngestEvent(ctx, &models.WebhookEvent{
		ActorID:    actorID,
		EventType:  eventType,
		EntityID:   entityID,
		EntityType: entityType,
		Payload:    payload,
	})
}

// IngestEvent stores event, when an event repository is configured, and then
// checks its triggers. A storage failure is logged and does not stop the
// triggers from firing.
func (e *Engine) IngestEvent(ctx context.Context, event *models.WebhookEvent) (err error) {
	if event == nil || event.EventType == "" {
		return protocol.Validationf("event type is required")
	}

	logger := e.logger.With("event_type", event.EventType, "entity_id", event.EntityID)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Recovered from panic while ingesting event", "panic", p, "stack", string(debug.Stack()))

			err = protocol.Fatal(fmt.Errorf("panic: %v", p))
		}
	}()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	if e.events != nil {
		if err := e.events.SaveEvent(ctx, event); err != nil {
			logger.Error("Failed to store event", "event_id", event.ID, "error", err)
		}
	}

	logger.Info("Event received", "event_id", event.ID, "entity_type", event.EntityType)

	e.CheckWorkflowTriggers(ctx, event.EventType, event.Payload)

	return nil
}

// RunTrigger fires a scheduled trigger. The run receives
// {triggerId, scheduledAt} as its trigger data.
func (e *Engine) RunTrigger(ctx context.Context, trigger *models.Trigger, scheduledAt time.Time) (result models.ExecutionResult) {
	defer recoverResult(&result, e.logger)

	if trigger == nil {
		return models.FailedResult("", "trigger is missing")
	}

	if !trigger.IsActive {
		return models.FailedResult("", fmt.Sprintf("trigger %s is inactive", trigger.ID))
	}

	payload := map[string]any{
		"triggerId":   trigger.ID,
		"scheduledAt": scheduledAt.UTC().Format(time.RFC3339),
	}

	return e.fire(ctx, trigger, payload)
}

func recoverResult(result *models.ExecutionResult, logger *slog.Logger) {
	if p := recover(); p != nil {
		logger.Error("Recovered from panic", "panic", p, "stack", string(debug.Stack()))

		*result = models.FailedResult("", fmt.Sprintf("internal error: %v", p))
	}
}
