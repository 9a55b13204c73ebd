// Package workflow runs workflow definitions step by step and fans inbound events
// out to the workflows their triggers select.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dukex/bizflow/pkg/conditions"
	"github.com/dukex/bizflow/pkg/eventbus"
	"github.com/dukex/bizflow/pkg/events"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/otelhelper"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/dukex/bizflow/pkg/retry"
	"github.com/dukex/bizflow/pkg/steps"
	"github.com/dukex/bizflow/pkg/template"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StepExecutor performs one attempt of a non-condition step.
type StepExecutor interface {
	Execute(ctx context.Context, inv steps.Invocation) (any, error)
}

// RunOptions selects how a run is recorded.
type RunOptions struct {
	// Persist creates an execution record and keeps it updated.
	Persist bool
	// DryRun flags the result. Steps are still dispatched.
	DryRun bool
}

// Runner walks the steps of one workflow in declared order. A Runner holds no
// per-run state and may serve many concurrent runs.
type Runner struct {
	executor    StepExecutor
	recorder    persistence.ExecutionRecorder
	retry       *retry.Controller
	conditions  *conditions.Evaluator
	expressions *conditions.ExpressionEvaluator
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	clock       clockwork.Clock
	logger      *slog.Logger
	newID       func() string
}

type RunnerOption func(*Runner)

// WithEventPublisher publishes execution lifecycle events.
func WithEventPublisher(publisher eventbus.EventPublisher) RunnerOption {
	return func(r *Runner) { r.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = tracer }
}

// WithClock sets the clock used for step durations and, unless a controller is
// passed to NewRunner, for retry delays.
func WithClock(clock clockwork.Clock) RunnerOption {
	return func(r *Runner) { r.clock = clock }
}

func WithConditionEvaluator(evaluator *conditions.Evaluator) RunnerOption {
	return func(r *Runner) { r.conditions = evaluator }
}

func NewRunner(
	executor StepExecutor,
	recorder persistence.ExecutionRecorder,
	controller *retry.Controller,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		executor:    executor,
		recorder:    recorder,
		retry:       controller,
		conditions:  conditions.New(),
		expressions: conditions.NewExpressionEvaluator(logger),
		tracer:      otelhelper.NoopTracer(),
		clock:       clockwork.NewRealClock(),
		logger:      logger.With("module", "workflow_runner"),
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.retry == nil {
		r.retry = retry.NewController(r.clock, logger)
	}

	return r
}

type run struct {
	id       string
	workflow *models.Workflow
	opts     RunOptions
	scope    *models.ExecutionContext
	logger   *slog.Logger
	started  time.Time
	steps    []models.StepResult
}

// Run executes wf with input placed under triggerData. It always returns a
// well-formed result: step failures, cancellation and panics become
// Success=false. An inactive workflow is rejected before any record is created.
func (r *Runner) Run(
	ctx context.Context,
	wf *models.Workflow,
	input map[string]any,
	actorID string,
	opts RunOptions,
) (result models.ExecutionResult) {
	if wf == nil {
		return models.FailedResult("", "workflow is missing")
	}

	if !wf.IsActive {
		r.logger.Info("Workflow is inactive, not running", "workflow_id", wf.ID)

		result = models.FailedResult("", fmt.Sprintf("workflow %s is inactive", wf.ID))
		result.DryRun = opts.DryRun

		return result
	}

	executionID, err := r.begin(ctx, wf, actorID, opts)
	if err != nil {
		r.logger.Error("Failed to create execution record", "workflow_id", wf.ID, "error", err)

		result = models.FailedResult("", fmt.Sprintf("creating execution record: %v", err))
		result.DryRun = opts.DryRun

		return result
	}

	ex := &run{
		id:       executionID,
		workflow: wf,
		opts:     opts,
		scope:    models.NewExecutionContext(executionID, wf, input),
		logger:   r.logger.With("workflow_id", wf.ID, "execution_id", executionID, "dry_run", opts.DryRun),
		started:  r.clock.Now(),
		steps:    make([]models.StepResult, 0, len(wf.Steps)),
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, wf.ID),
		attribute.String(otelhelper.WorkflowNameKey, wf.Name),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.Bool(otelhelper.DryRunKey, opts.DryRun),
	)
	defer span.End()

	var current string

	defer func() {
		if p := recover(); p != nil {
			ex.logger.Error("Workflow run panicked", "step_id", current, "panic", p, "stack", string(debug.Stack()))

			stepErr := &protocol.StepError{StepID: current, Kind: protocol.ErrFatal, Err: protocol.Fatal(fmt.Errorf("panic: %v", p))}
			otelhelper.SetError(span, stepErr)
			result = r.fail(ctx, ex, stepErr)
		}
	}()

	ex.logger.Info("Starting workflow run", "steps", len(wf.Steps), "actor_id", actorID)

	r.publish(ctx, ex, events.WorkflowExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionStartedEvent, wf.ID),
		ExecutionID: executionID,
		ActorID:     actorID,
		TriggerData: ex.scope.TriggerData,
		DryRun:      opts.DryRun,
	})

	for _, step := range wf.Steps {
		current = step.ID

		var (
			stepResult models.StepResult
			stepErr    *protocol.StepError
		)

		switch {
		case ctx.Err() != nil:
			stepErr = &protocol.StepError{
				StepID: step.ID,
				Kind:   protocol.ErrCancelled,
				Err:    fmt.Errorf("%w: %w", protocol.ErrCancelled, context.Cause(ctx)),
			}
			stepResult = models.StepResult{StepID: step.ID, Status: models.StepStatusFailed, Error: stepErr.Error()}
		case step.Disabled:
			stepResult = r.skipDisabled(ctx, ex, step)
		case step.Type == models.StepTypeCondition:
			stepResult, stepErr = r.runCondition(ctx, ex, step)
		default:
			stepResult, stepErr = r.runStep(ctx, ex, step)
		}

		ex.steps = append(ex.steps, stepResult)

		if stepErr != nil {
			otelhelper.SetError(span, stepErr, attribute.String(otelhelper.StepIDKey, step.ID))

			return r.fail(ctx, ex, stepErr)
		}
	}

	return r.complete(ctx, ex)
}

func (r *Runner) begin(ctx context.Context, wf *models.Workflow, actorID string, opts RunOptions) (string, error) {
	if !opts.Persist || r.recorder == nil {
		if opts.DryRun {
			return "test-" + r.newID(), nil
		}

		return r.newID(), nil
	}

	return r.recorder.CreateExecution(ctx, wf.ID, actorID)
}

func (r *Runner) skipDisabled(ctx context.Context, ex *run, step models.Step) models.StepResult {
	ex.logger.Debug("Skipping disabled step", "step_id", step.ID)
	r.record(ctx, ex, step.ID, models.StepEvent{Kind: models.StepEventSkipped, Message: "step is disabled"})

	return models.StepResult{StepID: step.ID, Status: models.StepStatusSkipped}
}

// runCondition evaluates a condition step in place. A false condition marks the
// step skipped and the run carries on with the next step.
func (r *Runner) runCondition(ctx context.Context, ex *run, step models.Step) (models.StepResult, *protocol.StepError) {
	start := r.clock.Now()
	result := models.StepResult{StepID: step.ID, Attempts: 1}
	scope := ex.scope.Scope()

	config, err := models.DecodeStepConfig(step.Type, template.InterpolateMap(step.Configuration, scope))
	if err != nil {
		return r.conditionFailed(ctx, ex, result, protocol.Configuration(err))
	}

	passed := r.conditions.Evaluate(interpolateConditions(step.Conditions, scope), scope)

	if expression := config.(models.ConditionConfig).Expression; passed && expression != "" {
		passed, err = r.expressions.Evaluate(expression, scope)
		if err != nil {
			return r.conditionFailed(ctx, ex, result, protocol.Configuration(err))
		}
	}

	output := map[string]any{"passed": passed}
	result.Output = output
	result.DurationMs = r.clock.Since(start).Milliseconds()
	ex.scope.SetStepOutput(step.ID, output)

	if !passed {
		ex.logger.Info("Condition not met, skipping step", "step_id", step.ID)
		result.Status = models.StepStatusSkipped
		r.record(ctx, ex, step.ID, models.StepEvent{Kind: models.StepEventSkipped, Message: "condition not met", Data: output})

		return result, nil
	}

	result.Status = models.StepStatusSucceeded
	r.record(ctx, ex, step.ID, models.StepEvent{Kind: models.StepEventSucceeded, Attempt: 1, Data: output})

	return result, nil
}

func (r *Runner) conditionFailed(
	ctx context.Context,
	ex *run,
	result models.StepResult,
	err error,
) (models.StepResult, *protocol.StepError) {
	stepErr := &protocol.StepError{StepID: result.StepID, Kind: protocol.Kind(err), Err: err}
	result.Status = models.StepStatusFailed
	result.Error = stepErr.Error()

	ex.logger.Error("Condition step is malformed", "step_id", result.StepID, "error", err)
	r.record(ctx, ex, result.StepID, models.StepEvent{Kind: models.StepEventFailed, Attempt: 1, Message: stepErr.Error()})

	return result, stepErr
}

func interpolateConditions(conds map[string]models.Condition, scope map[string]any) map[string]models.Condition {
	if len(conds) == 0 {
		return conds
	}

	out := make(map[string]models.Condition, len(conds))
	for path, condition := range conds {
		condition.Value = template.Interpolate(condition.Value, scope)
		out[path] = condition
	}

	return out
}

// runStep dispatches a step through the retry controller. A delay step's own
// pause is added to the per-attempt deadline so it cannot time itself out.
func (r *Runner) runStep(ctx context.Context, ex *run, step models.Step) (models.StepResult, *protocol.StepError) {
	logger := ex.logger.With("step_id", step.ID, "step_type", step.Type)

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)
	defer span.End()

	inv := steps.Prepare(step, ex.scope)

	policy := retry.PolicyForStep(step)
	if pause := steps.DelayFor(step, inv.Config); pause > 0 {
		policy.Timeout += pause
	}

	logger.Debug("Running step", "timeout", policy.Timeout, "retry_count", policy.RetryCount)
	r.record(ctx, ex, step.ID, models.StepEvent{Kind: models.StepEventStarted, Attempt: 1})

	outcome := r.retry.RunWithPolicy(ctx,
		func(ctx context.Context, _ int) (any, error) {
			return r.executor.Execute(ctx, inv)
		},
		policy,
		func(attempt int, err error, wait time.Duration) {
			logger.Warn("Step attempt failed", "attempt", attempt, "retry_in", wait, "error", err)
			r.record(ctx, ex, step.ID, models.StepEvent{
				Kind:    models.StepEventAttemptFailed,
				Attempt: attempt,
				Message: err.Error(),
				Data:    map[string]any{"retryInMs": wait.Milliseconds()},
			})
		},
	)

	span.SetAttributes(attribute.Int(otelhelper.AttemptKey, outcome.Attempts))

	result := models.StepResult{
		StepID:     step.ID,
		Attempts:   outcome.Attempts,
		DurationMs: outcome.Duration.Milliseconds(),
	}

	if outcome.Err != nil {
		stepErr := &protocol.StepError{StepID: step.ID, Kind: protocol.Kind(outcome.Err), Err: outcome.Err}
		result.Status = models.StepStatusFailed
		result.Error = stepErr.Error()

		logger.Error("Step failed", "attempts", outcome.Attempts, "error", outcome.Err)
		otelhelper.SetError(span, stepErr)
		r.record(ctx, ex, step.ID, models.StepEvent{
			Kind:    models.StepEventFailed,
			Attempt: outcome.Attempts,
			Message: stepErr.Error(),
		})

		return result, stepErr
	}

	result.Status = models.StepStatusSucceeded
	result.Output = outcome.Output
	ex.scope.SetStepOutput(step.ID, outcome.Output)

	logger.Debug("Step succeeded", "attempts", outcome.Attempts, "duration_ms", result.DurationMs)
	r.record(ctx, ex, step.ID, models.StepEvent{
		Kind:    models.StepEventSucceeded,
		Attempt: outcome.Attempts,
		Data:    outcome.Output,
	})

	return result, nil
}

func (r *Runner) complete(ctx context.Context, ex *run) models.ExecutionResult {
	output := ex.scope.Outputs()
	elapsed := r.clock.Since(ex.started)

	ex.logger.Info("Workflow run completed", "steps", len(ex.steps), "duration", elapsed)

	r.update(ctx, ex, models.ExecutionStatusCompleted, output, "")
	r.publish(ctx, ex, events.WorkflowExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, ex.workflow.ID),
		ExecutionID: ex.id,
		Output:      output,
		DurationMs:  elapsed.Milliseconds(),
		DryRun:      ex.opts.DryRun,
	})

	return models.ExecutionResult{
		Success:     true,
		ExecutionID: ex.id,
		Output:      output,
		Steps:       ex.steps,
		DryRun:      ex.opts.DryRun,
	}
}

func (r *Runner) fail(ctx context.Context, ex *run, stepErr *protocol.StepError) models.ExecutionResult {
	message := stepErr.Error()
	elapsed := r.clock.Since(ex.started)

	ex.logger.Info("Workflow run failed", "step_id", stepErr.StepID, "duration", elapsed, "error", message)

	result := models.FailedResult(ex.id, message)
	result.Steps = ex.steps
	result.DryRun = ex.opts.DryRun

	r.update(ctx, ex, models.ExecutionStatusFailed, result.Output, message)
	r.publish(ctx, ex, events.WorkflowExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionFailedEvent, ex.workflow.ID),
		ExecutionID: ex.id,
		StepID:      stepErr.StepID,
		Error:       message,
		DurationMs:  elapsed.Milliseconds(),
		DryRun:      ex.opts.DryRun,
	})

	return result
}

// update and record outlive the caller's context so a cancelled run is still
// recorded as failed.
func (r *Runner) update(ctx context.Context, ex *run, status models.ExecutionStatus, output any, errMsg string) {
	if !ex.opts.Persist || r.recorder == nil {
		return
	}

	if err := r.recorder.UpdateExecution(context.WithoutCancel(ctx), ex.id, status, output, errMsg); err != nil {
		ex.logger.Error("Failed to update execution record", "status", status, "error", err)
	}
}

func (r *Runner) record(ctx context.Context, ex *run, stepID string, event models.StepEvent) {
	if !ex.opts.Persist || r.recorder == nil {
		return
	}

	if err := r.recorder.AppendLog(context.WithoutCancel(ctx), ex.id, stepID, event); err != nil {
		ex.logger.Warn("Failed to append execution log", "step_id", stepID, "kind", event.Kind, "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, ex *run, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	if err := r.publisher.Publish(context.WithoutCancel(ctx), ex.workflow.ID, event); err != nil {
		ex.logger.Warn("Failed to publish execution event", "event_type", event.GetType(), "error", err)
	}
}
