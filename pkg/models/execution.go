package models

import "time"

// ExecutionStatus is the persisted state of one run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// CanTransitionTo reports whether a record in status s may be updated to next.
// Terminal records only accept a repeat of the same status, which recorders treat
// as a no-op.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	if s == next {
		return true
	}

	return s == ExecutionStatusRunning && next.IsTerminal()
}

// Execution is the persisted audit record of one run.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflowId"`
	ActorID     string          `json:"actorId,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Output      any             `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// StepEventKind classifies an execution log entry.
type StepEventKind string

const (
	StepEventStarted       StepEventKind = "step.started"
	StepEventAttemptFailed StepEventKind = "step.attempt_failed"
	StepEventSucceeded     StepEventKind = "step.succeeded"
	StepEventFailed        StepEventKind = "step.failed"
	StepEventSkipped       StepEventKind = "step.skipped"
)

// StepEvent is appended to an execution's log as a step progresses.
type StepEvent struct {
	Kind    StepEventKind `json:"kind"`
	Attempt int           `json:"attempt,omitempty"`
	Message string        `json:"message,omitempty"`
	Data    any           `json:"data,omitempty"`
}

// ExecutionLog is one persisted StepEvent.
type ExecutionLog struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"executionId"`
	StepID      string    `json:"stepId"`
	Event       StepEvent `json:"event"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StepStatus is the outcome of one step in one run.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult describes what happened to one step.
type StepResult struct {
	StepID     string     `json:"stepId"`
	Status     StepStatus `json:"status"`
	Output     any        `json:"output,omitempty"`
	Attempts   int        `json:"attempts"`
	DurationMs int64      `json:"durationMs"`
	Error      string     `json:"error,omitempty"`
}

// ExecutionResult is returned once per run and not modified afterwards.
// Error is set exactly when Success is false.
type ExecutionResult struct {
	Success     bool         `json:"success"`
	ExecutionID string       `json:"executionId,omitempty"`
	Output      any          `json:"output"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepResult `json:"steps,omitempty"`
	DryRun      bool         `json:"dryRun,omitempty"`
}

// FailedResult builds an unsuccessful result carrying message.
func FailedResult(executionID, message string) ExecutionResult {
	return ExecutionResult{
		Success:     false,
		ExecutionID: executionID,
		Output:      map[string]any{"error": message},
		Error:       message,
	}
}
