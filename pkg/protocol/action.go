package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/bizflow/pkg/models"
)

// ActionInput is what an action receives for one attempt.
type ActionInput struct {
	ExecutionContext *models.ExecutionContext
	Parameters       map[string]any
	Logger           *slog.Logger
}

// Action is a pluggable business-action handler selected by a step's actionType.
type Action interface {
	Execute(ctx context.Context, input ActionInput) (any, error)
}

// ActionFactory builds an Action from the step's interpolated action config.
type ActionFactory interface {
	Create(ctx context.Context, config map[string]any) (Action, error)
	ID() string
}

// ActionProvider resolves action factories by actionType.
type ActionProvider interface {
	CreateAction(ctx context.Context, actionType string, config map[string]any) (Action, error)
}
