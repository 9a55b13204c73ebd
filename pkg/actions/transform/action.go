// Package transform reshapes run data with a Go template.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/dukex/bizflow/pkg/template"
)

// Action renders Expression against the value found at Input. With no Input it
// renders against the whole run scope, including the env and execution namespaces.
type Action struct {
	Input      string
	Expression string
}

func NewAction(config map[string]any) (*Action, error) {
	input, _ := config["input"].(string)
	expression, _ := config["expression"].(string)

	if expression == "" {
		return nil, errors.New("transform requires an 'expression'")
	}

	return &Action{
		Input:      input,
		Expression: expression,
	}, nil
}

func (a *Action) Execute(_ context.Context, input protocol.ActionInput) (any, error) {
	if input.Logger != nil {
		input.Logger.Debug("Executing transform", "input", a.Input)
	}

	var (
		result any
		err    error
	)

	if a.Input == "" && input.ExecutionContext != nil {
		result, err = template.RenderWithContext(a.Expression, input.ExecutionContext)
	} else {
		var data any

		data, err = a.extract(input)
		if err != nil {
			return nil, protocol.Validation(err)
		}

		result, err = template.Render(a.Expression, data)
	}

	if err != nil {
		return nil, protocol.Validation(fmt.Errorf("transformation failed: %w", err))
	}

	return result, nil
}

func (a *Action) extract(input protocol.ActionInput) (any, error) {
	if input.ExecutionContext == nil {
		return map[string]any{}, nil
	}

	scope := input.ExecutionContext.Scope()
	if a.Input == "" {
		return scope, nil
	}

	value, ok := template.Lookup(scope, a.Input)
	if !ok {
		return nil, fmt.Errorf("input %q not found", a.Input)
	}

	return value, nil
}
