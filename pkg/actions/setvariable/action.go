// Package setvariable publishes named values as a step output so later steps can
// reference them as {{stepId.name}}.
package setvariable

import (
	"context"
	"errors"
	"maps"

	"github.com/dukex/bizflow/pkg/protocol"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "set_variable"
}

func (*ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	values, ok := config["values"].(map[string]any)
	if !ok {
		return nil, errors.New("set_variable requires a 'values' object")
	}

	return &Action{Values: maps.Clone(values)}, nil
}

// Action returns its values merged over the step parameters.
type Action struct {
	Values map[string]any
}

func (a *Action) Execute(_ context.Context, input protocol.ActionInput) (any, error) {
	out := make(map[string]any, len(a.Values)+len(input.Parameters))
	maps.Copy(out, input.Parameters)
	maps.Copy(out, a.Values)

	return out, nil
}
