package transform

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actionInput() protocol.ActionInput {
	ec := models.NewExecutionContext("exec-1", &models.Workflow{ID: "wf-1"}, map[string]any{
		"invoice": map[string]any{"number": "INV-7", "amount": 1500},
	})
	ec.SetStepOutput("lookup", map[string]any{"firstName": "Jane", "lastName": "Doe"})

	return protocol.ActionInput{
		ExecutionContext: ec,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestAction_WholeScope(t *testing.T) {
	action, err := NewAction(map[string]any{
		"expression": `{"name": "{{ .lookup.firstName }} {{ .lookup.lastName }}", "amount": {{ .triggerData.invoice.amount }}}`,
	})
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), actionInput())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Jane Doe", "amount": 1500.0}, out)
}

func TestAction_ExecutionNamespace(t *testing.T) {
	action, err := NewAction(map[string]any{"expression": "{{ .execution.workflowId }}:{{ .execution.id }}"})
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), actionInput())
	require.NoError(t, err)
	assert.Equal(t, "wf-1:exec-1", out)
}

func TestAction_InputPath(t *testing.T) {
	action, err := NewAction(map[string]any{"input": "triggerData.invoice", "expression": "{{ .number }}"})
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), actionInput())
	require.NoError(t, err)
	assert.Equal(t, "INV-7", out)
}

func TestAction_Errors(t *testing.T) {
	_, err := NewAction(map[string]any{})
	require.Error(t, err)

	action, err := NewAction(map[string]any{"input": "nope", "expression": "{{ . }}"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), actionInput())
	require.ErrorIs(t, err, protocol.ErrValidation)

	factory := NewActionFactory()
	assert.Equal(t, "transform", factory.ID())

	_, err = factory.Create(context.Background(), map[string]any{"expression": "{{ .x"})
	require.NoError(t, err)
}
