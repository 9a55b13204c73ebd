package models

import "maps"

// TriggerDataKey is the reserved scope key holding the trigger or input payload.
const TriggerDataKey = "triggerData"

// ExecutionContext is the per-run scope. It is created at run start and owned by a
// single run; it is never shared across runs.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	Variables   map[string]any
	TriggerData map[string]any
	StepOutputs map[string]any
	order       []string
}

// NewExecutionContext seeds a context with the workflow's variable defaults and the
// trigger payload.
func NewExecutionContext(executionID string, workflow *Workflow, triggerData map[string]any) *ExecutionContext {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	return &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflow.ID,
		Variables:   maps.Clone(workflow.Variables),
		TriggerData: triggerData,
		StepOutputs: map[string]any{},
	}
}

// SetStepOutput records a completed step's output.
func (c *ExecutionContext) SetStepOutput(stepID string, output any) {
	if _, ok := c.StepOutputs[stepID]; !ok {
		c.order = append(c.order, stepID)
	}

	c.StepOutputs[stepID] = output
}

// Scope returns the merged lookup scope: variables, then step outputs keyed by
// step id, each shadowing the one before. triggerData is written last and is
// never shadowed.
func (c *ExecutionContext) Scope() map[string]any {
	scope := make(map[string]any, len(c.Variables)+len(c.StepOutputs)+1)
	maps.Copy(scope, c.Variables)
	maps.Copy(scope, c.StepOutputs)
	scope[TriggerDataKey] = c.TriggerData

	return scope
}

// Outputs returns a copy of the accumulated step outputs.
func (c *ExecutionContext) Outputs() map[string]any {
	return maps.Clone(c.StepOutputs)
}

// StepOrder lists step ids in the order their outputs were recorded.
func (c *ExecutionContext) StepOrder() []string {
	return append([]string(nil), c.order...)
}
