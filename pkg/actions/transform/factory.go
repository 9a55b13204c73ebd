package transform

import (
	"context"

	"github.com/dukex/bizflow/pkg/protocol"
)

// ActionFactory creates transform actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (h *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (h *ActionFactory) ID() string {
	return "transform"
}
