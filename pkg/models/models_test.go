package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		ID:       "wf-1",
		Name:     "Invoice follow-up",
		IsActive: true,
		Owner:    "user-1",
		Steps: []Step{
			{
				ID:             "notify",
				Name:           "Email customer",
				Type:           StepTypeEmail,
				Configuration:  map[string]any{"to": "{{triggerData.email}}", "subject": "Thanks"},
				TimeoutSeconds: 30,
			},
			{
				ID:             "wait",
				Name:           "Wait",
				Type:           StepTypeDelay,
				Configuration:  map[string]any{"duration": "5 minutes"},
				TimeoutSeconds: 30,
			},
		},
	}
}

func TestWorkflow_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(w *Workflow)
		wantErr string
	}{
		{name: "valid", mutate: func(*Workflow) {}},
		{
			name:    "missing owner",
			mutate:  func(w *Workflow) { w.Owner = "" },
			wantErr: "Owner",
		},
		{
			name:    "duplicate step id",
			mutate:  func(w *Workflow) { w.Steps[1].ID = "notify" },
			wantErr: "duplicate step id",
		},
		{
			name:    "reserved step id",
			mutate:  func(w *Workflow) { w.Steps[1].ID = TriggerDataKey },
			wantErr: "is reserved",
		},
		{
			name:    "negative retry count",
			mutate:  func(w *Workflow) { w.Steps[0].RetryCount = -1 },
			wantErr: "RetryCount",
		},
		{
			name:    "zero timeout",
			mutate:  func(w *Workflow) { w.Steps[0].TimeoutSeconds = 0 },
			wantErr: "TimeoutSeconds",
		},
		{
			name:    "unknown step type",
			mutate:  func(w *Workflow) { w.Steps[0].Type = "fax" },
			wantErr: "Type",
		},
		{
			name:    "email without recipient",
			mutate:  func(w *Workflow) { w.Steps[0].Configuration = map[string]any{"subject": "x"} },
			wantErr: "'to' is required",
		},
		{
			name:    "delay without duration",
			mutate:  func(w *Workflow) { w.Steps[1].Configuration = nil },
			wantErr: "'duration' is required",
		},
		{
			name:    "unknown backoff",
			mutate:  func(w *Workflow) { w.Steps[0].RetryBackoff = "linear" },
			wantErr: "RetryBackoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wf := validWorkflow()
			tt.mutate(wf)

			err := wf.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWorkflow_ApplyDefaults(t *testing.T) {
	t.Parallel()

	wf := validWorkflow()
	wf.Steps[0].TimeoutSeconds = 0

	wf.ApplyDefaults(DefaultStepTimeoutSeconds)

	assert.Equal(t, DefaultStepTimeoutSeconds, wf.Steps[0].TimeoutSeconds)
	assert.Equal(t, 30, wf.Steps[1].TimeoutSeconds)
	assert.Equal(t, BackoffFixed, wf.Steps[0].RetryBackoff)
	require.NoError(t, wf.Validate())
}

func TestDecodeStepConfig(t *testing.T) {
	t.Parallel()

	config, err := DecodeStepConfig(StepTypeWebhook, map[string]any{
		"url":     "https://example.com/hook",
		"method":  "put",
		"headers": map[string]any{"X-Token": "abc"},
		"body":    map[string]any{"id": 1},
	})
	require.NoError(t, err)

	webhook, ok := config.(WebhookConfig)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/hook", webhook.URL)
	assert.Equal(t, "PUT", webhook.MethodOrDefault())
	assert.Equal(t, "abc", webhook.Headers["X-Token"])
	require.NoError(t, webhook.Validate())

	action, err := DecodeStepConfig(StepTypeAction, map[string]any{"actionType": "log"})
	require.NoError(t, err)
	assert.Equal(t, ActionConfig{ActionType: "log"}, action)

	_, err = DecodeStepConfig("fax", nil)
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = DecodeStepConfig(StepTypeEmail, map[string]any{"to": []any{1, 2}})
	require.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestWebhookConfig_DefaultMethod(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "POST", WebhookConfig{URL: "http://x"}.MethodOrDefault())
	assert.Error(t, WebhookConfig{URL: "http://x", Method: "TRACE"}.Validate())
}

func TestExecutionStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	assert.True(t, ExecutionStatusRunning.CanTransitionTo(ExecutionStatusCompleted))
	assert.True(t, ExecutionStatusRunning.CanTransitionTo(ExecutionStatusFailed))
	assert.True(t, ExecutionStatusCompleted.CanTransitionTo(ExecutionStatusCompleted))
	assert.False(t, ExecutionStatusCompleted.CanTransitionTo(ExecutionStatusRunning))
	assert.False(t, ExecutionStatusFailed.CanTransitionTo(ExecutionStatusCompleted))
	assert.False(t, ExecutionStatusCompleted.CanTransitionTo(ExecutionStatusFailed))
}

func TestExecutionContext_Scope(t *testing.T) {
	t.Parallel()

	wf := validWorkflow()
	wf.Variables = map[string]any{"company": "Acme", "notify": "shadowed"}

	ec := NewExecutionContext("exec-1", wf, map[string]any{"email": "a@b.com"})
	ec.SetStepOutput("notify", map[string]any{"messageId": "m-1"})
	ec.SetStepOutput("wait", map[string]any{"waited": "5m0s"})

	scope := ec.Scope()
	assert.Equal(t, "Acme", scope["company"])
	assert.Equal(t, map[string]any{"email": "a@b.com"}, scope[TriggerDataKey])
	assert.Equal(t, map[string]any{"messageId": "m-1"}, scope["notify"])
	assert.Equal(t, []string{"notify", "wait"}, ec.StepOrder())

	// variables of the workflow are copied, not aliased
	ec.Variables["company"] = "Other"
	assert.Equal(t, "Acme", wf.Variables["company"])
}

func TestExecutionContext_ScopeKeepsTriggerData(t *testing.T) {
	t.Parallel()

	wf := validWorkflow()
	wf.Variables = map[string]any{TriggerDataKey: "from variables"}

	ec := NewExecutionContext("exec-1", wf, map[string]any{"email": "a@b.com"})
	ec.SetStepOutput(TriggerDataKey, map[string]any{"statusCode": 200})

	assert.Equal(t, map[string]any{"email": "a@b.com"}, ec.Scope()[TriggerDataKey])
}

func TestExecutionContext_EmptyOutputs(t *testing.T) {
	t.Parallel()

	ec := NewExecutionContext("exec-1", &Workflow{ID: "wf"}, nil)

	assert.Equal(t, map[string]any{}, ec.Outputs())
	assert.Equal(t, map[string]any{}, ec.TriggerData)
}

func TestTrigger_Validate(t *testing.T) {
	t.Parallel()

	trigger := &Trigger{
		WorkflowID: "wf-1",
		EventType:  "invoice.created",
		IsActive:   true,
		Conditions: map[string]Condition{"amount": {Operator: OperatorGreaterThan, Value: 1000}},
	}
	require.NoError(t, trigger.Validate())

	scheduled := &Trigger{WorkflowID: "wf-1", EventType: ScheduleEventType, Schedule: "not a cron"}
	require.ErrorIs(t, scheduled.Validate(), ErrInvalidDefinition)

	scheduled.Schedule = "*/5 * * * *"
	require.NoError(t, scheduled.Validate())
	assert.True(t, scheduled.IsScheduled())

	missing := &Trigger{EventType: "x"}
	require.ErrorIs(t, missing.Validate(), ErrInvalidDefinition)
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 1, 1, 10, 2, 0, 0, time.UTC)

	next, err := NextRun("*/5 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC), next)

	_, err = NextRun("61 * * * *", ref)
	assert.Error(t, err)
}

func TestFailedResult(t *testing.T) {
	t.Parallel()

	res := FailedResult("exec-1", "boom")
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
	assert.Equal(t, map[string]any{"error": "boom"}, res.Output)
}
