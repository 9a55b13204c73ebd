package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukex/bizflow/pkg/mocks"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/dukex/bizflow/pkg/testutil"
	"github.com/dukex/bizflow/pkg/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	store    *mocks.MockWorkflowStore
	recorder *mocks.MockExecutionRepository
	sender   *mocks.MockEmailSender
	webhook  *mocks.MockWebhookClient
	engine   *workflow.Engine
}

func newEngine(opts ...workflow.EngineOption) *engineFixture {
	f := &engineFixture{
		store:    &mocks.MockWorkflowStore{},
		recorder: newRecorder("exec-1"),
		sender:   &mocks.MockEmailSender{},
		webhook:  &mocks.MockWebhookClient{},
	}

	runner := newRunner(protocol.Collaborators{Email: f.sender, Webhook: f.webhook}, f.recorder, clockwork.NewFakeClock())
	f.engine = workflow.NewEngine(f.store, runner, workflow.NewTriggerMatcher(nil, discardLogger()), discardLogger(), opts...)

	return f
}

func invoiceTrigger(workflowID string) *models.Trigger {
	return testutil.NewTrigger(workflowID, "invoice.created", testutil.WithTriggerConditions(map[string]models.Condition{
		"amount": {Operator: models.OperatorGreaterThan, Value: 1000},
	}))
}

func TestEngine_ExecuteWorkflow_EmailScenario(t *testing.T) {
	f := newEngine()

	step := testutil.NewStep("mail", testutil.WithType(models.StepTypeEmail, map[string]any{
		"to":      "{{triggerData.email}}",
		"subject": "hello",
	}))
	wf := testutil.NewWorkflow(testutil.WithSteps(step))

	f.store.On("GetWorkflow", mock.Anything, wf.ID).Return(wf, nil)
	f.sender.On("Send", mock.Anything, protocol.EmailMessage{To: []string{"a@b.com"}, Subject: "hello"}).
		Return(receipt, nil).Once()

	result := f.engine.ExecuteWorkflow(context.Background(), wf.ID, map[string]any{"email": "a@b.com"}, "user-1")

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "exec-1", result.ExecutionID)
	assert.False(t, result.DryRun)
	f.sender.AssertExpectations(t)
	f.recorder.AssertCalled(t, "CreateExecution", mock.Anything, wf.ID, "user-1")
	f.recorder.AssertCalled(t, "UpdateExecution", mock.Anything, "exec-1", models.ExecutionStatusCompleted, mock.Anything, "")
}

func TestEngine_ExecuteWorkflow_WebhookRetryScenario(t *testing.T) {
	f := newEngine()

	wf := testutil.NewWorkflow(testutil.WithSteps(webhookStep("hook", 2, 0)))
	f.store.On("GetWorkflow", mock.Anything, wf.ID).Return(wf, nil)
	f.webhook.On("Send", mock.Anything, mock.Anything).Return(protocol.WebhookResponse{StatusCode: 502}, nil).Times(2)
	f.webhook.On("Send", mock.Anything, mock.Anything).Return(okResponse, nil).Once()

	result := f.engine.ExecuteWorkflow(context.Background(), wf.ID, nil, "user-1")

	require.True(t, result.Success, result.Error)
	f.webhook.AssertNumberOfCalls(t, "Send", 3)
}

func TestEngine_ExecuteWorkflow_LoadFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", persistence.ErrWorkflowNotFound, "workflow not found"},
		{"store failure", errors.New("connection refused"), "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngine()
			f.store.On("GetWorkflow", mock.Anything, "wf-404").Return(nil, tt.err)

			result := f.engine.ExecuteWorkflow(context.Background(), "wf-404", nil, "user-1")

			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tt.want)
			f.recorder.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEngine_ExecuteWorkflow_RecoversPanics(t *testing.T) {
	f := newEngine()
	f.store.On("GetWorkflow", mock.Anything, "wf-1").Run(func(mock.Arguments) { panic("store bug") }).Return(nil, nil)

	var result models.ExecutionResult

	require.NotPanics(t, func() {
		result = f.engine.ExecuteWorkflow(context.Background(), "wf-1", nil, "user-1")
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "store bug")
}

func TestEngine_TestWorkflowDoesNotPersist(t *testing.T) {
	f := newEngine()

	wf := testutil.NewWorkflow(testutil.WithSteps(testutil.NewStep("mail")))
	f.store.On("GetWorkflow", mock.Anything, wf.ID).Return(wf, nil)
	f.sender.On("Send", mock.Anything, mock.Anything).Return(receipt, nil).Once()

	result := f.engine.TestWorkflow(context.Background(), wf.ID, nil, "user-1")

	require.True(t, result.Success, result.Error)
	assert.True(t, result.DryRun)
	assert.True(t, strings.HasPrefix(result.ExecutionID, "test-"))
	f.sender.AssertExpectations(t)
	f.recorder.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything, mock.Anything)
	f.recorder.AssertNotCalled(t, "UpdateExecution", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.recorder.AssertNotCalled(t, "AppendLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_OnEvent_InvoiceScenario(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		matches int
	}{
		{"above threshold", 1500, 1},
		{"below threshold", 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngine()

			wf := testutil.NewWorkflow()
			f.store.On("GetTriggers", mock.Anything, "invoice.created").Return([]*models.Trigger{invoiceTrigger(wf.ID)}, nil)
			f.store.On("GetWorkflow", mock.Anything, wf.ID).Return(wf, nil)

			results := f.engine.OnEvent(context.Background(), "invoice.created", map[string]any{"amount": tt.amount})

			require.Len(t, results, tt.matches)

			if tt.matches == 0 {
				f.store.AssertNotCalled(t, "GetWorkflow", mock.Anything, mock.Anything)
				f.recorder.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything, mock.Anything)

				return
			}

			assert.True(t, results[0].Success)
			f.recorder.AssertCalled(t, "CreateExecution", mock.Anything, wf.ID, mock.Anything)
		})
	}
}

func TestEngine_CheckWorkflowTriggers_NoMatchCreatesNothing(t *testing.T) {
	f := newEngine()

	inactive := testutil.NewTrigger("wf-1", "invoice.created", testutil.WithTriggerActive(false))
	otherType := testutil.NewTrigger("wf-2", "invoice.paid")

	f.store.On("GetTriggers", mock.Anything, "invoice.created").Return([]*models.Trigger{inactive, otherType}, nil)

	f.engine.CheckWorkflowTriggers(context.Background(), "invoice.created", map[string]any{"amount": 5000})

	f.store.AssertNotCalled(t, "GetWorkflow", mock.Anything, mock.Anything)
	f.recorder.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_OnEvent_ResultsInMatchOrder(t *testing.T) {
	f := newEngine()

	recorder := &mocks.MockExecutionRepository{}
	recorder.On("CreateExecution", mock.Anything, "wf-a", mock.Anything).Return("exec-a", nil)
	recorder.On("CreateExecution", mock.Anything, "wf-b", mock.Anything).Return("exec-b", nil)
	recorder.On("UpdateExecution", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	recorder.On("AppendLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	runner := newRunner(protocol.Collaborators{}, recorder, clockwork.NewFakeClock())
	engine := workflow.NewEngine(f.store, runner, nil, discardLogger())

	wfA := testutil.NewWorkflow(func(w *models.Workflow) { w.ID = "wf-a" })
	wfB := testutil.NewWorkflow(func(w *models.Workflow) { w.ID = "wf-b" })

	f.store.On("GetTriggers", mock.Anything, "invoice.created").
		Return([]*models.Trigger{invoiceTrigger("wf-a"), invoiceTrigger("wf-b")}, nil)
	f.store.On("GetWorkflow", mock.Anything, "wf-a").Return(wfA, nil)
	f.store.On("GetWorkflow", mock.Anything, "wf-b").Return(wfB, nil)

	results := engine.OnEvent(context.Background(), "invoice.created", map[string]any{"amount": 2000})

	require.Len(t, results, 2)
	assert.Equal(t, "exec-a", results[0].ExecutionID)
	assert.Equal(t, "exec-b", results[1].ExecutionID)
}

func TestEngine_OnEvent_InactiveWorkflowStillMatches(t *testing.T) {
	f := newEngine()

	wf := testutil.NewWorkflow(testutil.Inactive())
	f.store.On("GetTriggers", mock.Anything, "invoice.created").Return([]*models.Trigger{invoiceTrigger(wf.ID)}, nil)
	f.store.On("GetWorkflow", mock.Anything, wf.ID).Return(wf, nil)

	results := f.engine.OnEvent(context.Background(), "invoice.created", map[string]any{"amount": 2000})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "inactive")
	f.recorder.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_OnEvent_TriggerLoadFailure(t *testing.T) {
	f := newEngine()
	f.store.On("GetTriggers", mock.Anything, "invoice.created").Return(nil, errors.New("timeout"))

	assert.Empty(t, f.engine.OnEvent(context.Background(), "invoice.created", nil))
}

func TestEngine_CreateWebhookEvent(t *testing.T) {
	events := &mocks.MockEventRepository{}
	events.On("SaveEvent", mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return e.ID != "" && e.EventType == "invoice.created" && e.EntityID == "inv-9" && e.ActorID == "acct-1"
	})).Return(nil).Once()

	f := newEngine(workflow.WithEventRepository(events))

	wf := testutil.NewWorkflow()
	f.store.On("GetTriggers", mock.Anything, "invoice.created").Return([]*models.Trigger{invoiceTrigger(wf.ID)}, nil)
	f.store.On("GetWorkflow", mock.Anything, wf.ID).Return(wf, nil)

	err := f.engine.CreateWebhookEvent(context.Background(), "acct-1", "invoice.created", "inv-9", "invoice",
		map[string]any{"amount": 1200})

	require.NoError(t, err)
	events.AssertExpectations(t)
	f.recorder.AssertCalled(t, "CreateExecution", mock.Anything, wf.ID, mock.Anything)
}

func TestEngine_IngestEventRequiresType(t *testing.T) {
	f := newEngine()

	err := f.engine.IngestEvent(context.Background(), &models.WebhookEvent{})

	require.ErrorIs(t, err, protocol.ErrValidation)
	f.store.AssertNotCalled(t, "GetTriggers", mock.Anything, mock.Anything)
}

func TestEngine_RunTrigger(t *testing.T) {
	f := newEngine()

	wf := testutil.NewWorkflow(testutil.WithSteps(testutil.NewStep("mail", testutil.WithType(models.StepTypeEmail, map[string]any{
		"to":      "ops@example.com",
		"subject": "report {{triggerData.triggerId}} at {{triggerData.scheduledAt}}",
	}))))
	trigger := testutil.NewTrigger(wf.ID, models.ScheduleEventType, testutil.WithSchedule("0 9 * * 1"))

	f.store.On("GetWorkflow", mock.Anything, wf.ID).Return(wf, nil)
	f.sender.On("Send", mock.Anything, protocol.EmailMessage{
		To:      []string{"ops@example.com"},
		Subject: "report " + trigger.ID + " at 2025-06-02T09:00:00Z",
	}).Return(receipt, nil).Once()

	result := f.engine.RunTrigger(context.Background(), trigger, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))

	require.True(t, result.Success, result.Error)
	f.sender.AssertExpectations(t)
}

func TestEngine_RunTriggerInactive(t *testing.T) {
	f := newEngine()

	trigger := testutil.NewTrigger("wf-1", models.ScheduleEventType, testutil.WithTriggerActive(false))

	result := f.engine.RunTrigger(context.Background(), trigger, time.Now())

	assert.False(t, result.Success)
	f.store.AssertNotCalled(t, "GetWorkflow", mock.Anything, mock.Anything)
}
