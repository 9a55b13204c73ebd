package steps_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/bizflow/pkg/mocks"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/dukex/bizflow/pkg/steps"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newContext() *models.ExecutionContext {
	workflow := &models.Workflow{ID: "wf-1", Variables: map[string]any{"company": "Acme"}}

	return models.NewExecutionContext("exec-1", workflow, map[string]any{
		"customer": map[string]any{"email": "ana@example.com", "name": "Ana"},
		"amount":   1500.0,
	})
}

func invoke(step models.Step, ec *models.ExecutionContext) steps.Invocation {
	return steps.Prepare(step, ec)
}

func TestExecutor_Email(t *testing.T) {
	sender := &mocks.MockEmailSender{}
	executor := steps.NewExecutor(protocol.Collaborators{Email: sender}, nil, discardLogger())

	sentAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sender.On("Send", mock.Anything, protocol.EmailMessage{
		To:      []string{"ana@example.com", "ops@example.com"},
		Subject: "Invoice for Ana",
		Body:    "Amount 1500 from Acme",
	}).Return(protocol.Receipt{ID: "m-1", Status: "sent", SentAt: sentAt}, nil)

	step := models.Step{ID: "mail", Type: models.StepTypeEmail, Configuration: map[string]any{
		"to":      "{{triggerData.customer.email}}; ops@example.com",
		"subject": "Invoice for {{triggerData.customer.name}}",
		"body":    "Amount {{triggerData.amount}} from {{company}}",
	}}

	output, err := executor.Execute(context.Background(), invoke(step, newContext()))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"id": "m-1", "status": "sent", "sentAt": "2025-03-01T12:00:00Z"}, output)
	sender.AssertExpectations(t)
}

func TestExecutor_EmailErrorKeepsClassification(t *testing.T) {
	sender := &mocks.MockEmailSender{}
	executor := steps.NewExecutor(protocol.Collaborators{Email: sender}, nil, discardLogger())

	sender.On("Send", mock.Anything, mock.Anything).
		Return(protocol.Receipt{}, protocol.Transientf("smtp busy"))

	step := models.Step{ID: "mail", Type: models.StepTypeEmail, Configuration: map[string]any{"to": "a@b.c"}}

	_, err := executor.Execute(context.Background(), invoke(step, newContext()))
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrTransient)
	assert.True(t, protocol.IsRetryable(err))
}

func TestExecutor_EmailWithEmptyInterpolatedRecipient(t *testing.T) {
	sender := &mocks.MockEmailSender{}
	executor := steps.NewExecutor(protocol.Collaborators{Email: sender}, nil, discardLogger())

	step := models.Step{ID: "mail", Type: models.StepTypeEmail, Configuration: map[string]any{"to": "{{missing.email}}"}}

	_, err := executor.Execute(context.Background(), invoke(step, newContext()))
	assert.ErrorIs(t, err, protocol.ErrValidation)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestExecutor_Webhook(t *testing.T) {
	client := &mocks.MockWebhookClient{}
	executor := steps.NewExecutor(protocol.Collaborators{Webhook: client}, nil, discardLogger())

	client.On("Send", mock.Anything, protocol.WebhookRequest{
		URL:     "https://hooks.example.com/invoices",
		Method:  "POST",
		Headers: map[string]string{"X-Company": "Acme"},
		Body:    map[string]any{"amount": 1500.0},
	}).Return(protocol.WebhookResponse{
		StatusCode: 201,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       map[string]any{"ok": true},
	}, nil)

	step := models.Step{ID: "hook", Type: models.StepTypeWebhook, Configuration: map[string]any{
		"url":     "https://hooks.example.com/invoices",
		"headers": map[string]any{"X-Company": "{{company}}"},
		"body":    map[string]any{"amount": "{{triggerData.amount}}"},
	}}

	output, err := executor.Execute(context.Background(), invoke(step, newContext()))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"statusCode": 201,
		"headers":    map[string]any{"Content-Type": "application/json"},
		"body":       map[string]any{"ok": true},
	}, output)
	client.AssertExpectations(t)
}

func TestExecutor_WebhookNon2xxIsTransient(t *testing.T) {
	for _, status := range []int{302, 404, 429, 503} {
		client := &mocks.MockWebhookClient{}
		executor := steps.NewExecutor(protocol.Collaborators{Webhook: client}, nil, discardLogger())

		client.On("Send", mock.Anything, mock.Anything).Return(protocol.WebhookResponse{StatusCode: status}, nil)

		step := models.Step{ID: "hook", Type: models.StepTypeWebhook, Configuration: map[string]any{"url": "https://x.test"}}

		_, err := executor.Execute(context.Background(), invoke(step, newContext()))
		assert.ErrorIs(t, err, protocol.ErrTransient, "status %d", status)
	}
}

func TestExecutor_Delay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	executor := steps.NewExecutor(protocol.Collaborators{}, clock, discardLogger())

	step := models.Step{ID: "wait", Type: models.StepTypeDelay, Configuration: map[string]any{"duration": "5 minutes"}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		output any
		err    error
	}

	done := make(chan result, 1)

	go func() {
		output, err := executor.Execute(ctx, invoke(step, newContext()))
		done <- result{output, err}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(5 * time.Minute)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, map[string]any{"waited": "5m0s", "seconds": 300.0}, r.output)
	case <-ctx.Done():
		t.Fatal("delay step did not finish")
	}
}

func TestExecutor_DelayCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	executor := steps.NewExecutor(protocol.Collaborators{}, clock, discardLogger())

	step := models.Step{ID: "wait", Type: models.StepTypeDelay, Configuration: map[string]any{"duration": 60}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		_, err := executor.Execute(ctx, invoke(step, newContext()))
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-waitCtx.Done():
		t.Fatal("delay step ignored cancellation")
	}
}

func TestExecutor_DelayInvalidDuration(t *testing.T) {
	executor := steps.NewExecutor(protocol.Collaborators{}, clockwork.NewFakeClock(), discardLogger())

	step := models.Step{ID: "wait", Type: models.StepTypeDelay, Configuration: map[string]any{"duration": "soon"}}

	_, err := executor.Execute(context.Background(), invoke(step, newContext()))
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestExecutor_Notification(t *testing.T) {
	creator := &mocks.MockNotificationCreator{}
	executor := steps.NewExecutor(protocol.Collaborators{Notifications: creator}, nil, discardLogger())

	creator.On("Send", mock.Anything, protocol.Notification{
		UserID:      "u-1",
		Message:     "Invoice from Ana",
		Level:       "info",
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
	}).Return(protocol.Receipt{ID: "n-1", Status: "created", Recipient: "u-1"}, nil)

	step := models.Step{ID: "notify", Type: models.StepTypeNotification, Configuration: map[string]any{
		"userId":  "u-1",
		"message": "Invoice from {{triggerData.customer.name}}",
	}}

	output, err := executor.Execute(context.Background(), invoke(step, newContext()))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"id": "n-1", "status": "created", "recipient": "u-1"}, output)
	creator.AssertExpectations(t)
}

func TestExecutor_AI(t *testing.T) {
	analyzer := &mocks.MockAIAnalyzer{}
	executor := steps.NewExecutor(protocol.Collaborators{AI: analyzer}, nil, discardLogger())

	analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(req protocol.AnalysisRequest) bool {
		return req.Prompt == "Summarise invoice of 1500" && req.Context["company"] == "Acme"
	})).Return(protocol.AnalysisResult{Model: "gpt-4o-mini", Content: "A large invoice", Tokens: 12}, nil)

	step := models.Step{ID: "ai", Type: models.StepTypeGPT, Configuration: map[string]any{
		"prompt": "Summarise invoice of {{triggerData.amount}}",
	}}

	output, err := executor.Execute(context.Background(), invoke(step, newContext()))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"model": "gpt-4o-mini", "content": "A large invoice", "tokens": 12}, output)
}

type stubAction struct {
	output any
	err    error
	got    protocol.ActionInput
}

func (s *stubAction) Execute(_ context.Context, input protocol.ActionInput) (any, error) {
	s.got = input

	return s.output, s.err
}

func TestExecutor_Action(t *testing.T) {
	provider := &mocks.MockActionProvider{}
	executor := steps.NewExecutor(protocol.Collaborators{Actions: provider}, nil, discardLogger())

	action := &stubAction{output: map[string]any{"ok": true}}
	provider.On("CreateAction", mock.Anything, "log", map[string]any{"message": "hi Ana"}).Return(action, nil)

	step := models.Step{
		ID:   "act",
		Type: models.StepTypeAction,
		Configuration: map[string]any{
			"actionType": "log",
			"config":     map[string]any{"message": "hi {{triggerData.customer.name}}"},
		},
		Parameters: map[string]any{"who": "{{triggerData.customer.name}}"},
	}

	output, err := executor.Execute(context.Background(), invoke(step, newContext()))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"ok": true}, output)
	assert.Equal(t, map[string]any{"who": "Ana"}, action.got.Parameters)
	assert.NotNil(t, action.got.Logger)
}

func TestExecutor_ActionNotRegisteredIsConfiguration(t *testing.T) {
	provider := &mocks.MockActionProvider{}
	executor := steps.NewExecutor(protocol.Collaborators{Actions: provider}, nil, discardLogger())

	provider.On("CreateAction", mock.Anything, "nope", mock.Anything).Return(nil, errors.New("action not registered"))

	step := models.Step{ID: "act", Type: models.StepTypeAction, Configuration: map[string]any{"actionType": "nope"}}

	_, err := executor.Execute(context.Background(), invoke(step, newContext()))
	assert.ErrorIs(t, err, protocol.ErrConfiguration)
	assert.False(t, protocol.IsRetryable(err))
}

func TestExecutor_RejectsUndispatchableSteps(t *testing.T) {
	executor := steps.NewExecutor(protocol.Collaborators{}, nil, discardLogger())

	tests := []struct {
		name string
		step models.Step
		want error
	}{
		{"condition", models.Step{ID: "c", Type: models.StepTypeCondition}, protocol.ErrFatal},
		{"unknown type", models.Step{ID: "u", Type: "carrier_pigeon"}, protocol.ErrFatal},
		{"missing collaborator", models.Step{ID: "m", Type: models.StepTypeEmail,
			Configuration: map[string]any{"to": "a@b.c"}}, protocol.ErrConfiguration},
		{"missing required field", models.Step{ID: "w", Type: models.StepTypeWebhook,
			Configuration: map[string]any{}}, protocol.ErrValidation},
		{"malformed field", models.Step{ID: "e", Type: models.StepTypeEmail,
			Configuration: map[string]any{"to": 42}}, protocol.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), invoke(tt.step, newContext()))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDelayFor(t *testing.T) {
	assert.Equal(t, 2*time.Minute, steps.DelayFor(models.Step{Type: models.StepTypeDelay}, map[string]any{"duration": "2m"}))
	assert.Zero(t, steps.DelayFor(models.Step{Type: models.StepTypeEmail}, map[string]any{"duration": "2m"}))
	assert.Zero(t, steps.DelayFor(models.Step{Type: models.StepTypeDelay}, map[string]any{"duration": "later"}))
}
