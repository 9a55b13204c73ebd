package setvariable

import (
	"context"
	"testing"

	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVariable(t *testing.T) {
	factory := NewActionFactory()
	assert.Equal(t, "set_variable", factory.ID())

	action, err := factory.Create(context.Background(), map[string]any{
		"values": map[string]any{"segment": "enterprise", "discount": 0.1},
	})
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), protocol.ActionInput{
		Parameters: map[string]any{"segment": "smb", "source": "crm"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"segment": "enterprise", "discount": 0.1, "source": "crm"}, out)

	_, err = factory.Create(context.Background(), map[string]any{"values": "nope"})
	require.Error(t, err)
}
