// Package log_action writes a message from a workflow run to the engine log.
package log_action

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/bizflow/pkg/protocol"
)

type LogAction struct {
	Message string
	Level   slog.Level
}

func NewLogAction(config map[string]any) *LogAction {
	message, _ := config["message"].(string)
	levelName, _ := config["level"].(string)

	return &LogAction{
		Message: message,
		Level:   parseLevel(levelName),
	}
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Execute logs the message with the step parameters as attributes.
func (a *LogAction) Execute(ctx context.Context, input protocol.ActionInput) (any, error) {
	logger := input.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := make([]any, 0, 2*len(input.Parameters))
	for key, value := range input.Parameters {
		attrs = append(attrs, key, value)
	}

	logger.Log(ctx, a.Level, a.Message, attrs...)

	return map[string]any{
		"message": a.Message,
		"level":   strings.ToLower(a.Level.String()),
	}, nil
}
