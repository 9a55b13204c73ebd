package workflow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/bizflow/pkg/conditions"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// TriggerMatcher selects the triggers an inbound event fires.
type TriggerMatcher struct {
	evaluator *conditions.Evaluator
	logger    *slog.Logger
}

func NewTriggerMatcher(evaluator *conditions.Evaluator, logger *slog.Logger) *TriggerMatcher {
	if evaluator == nil {
		evaluator = conditions.New()
	}

	return &TriggerMatcher{
		evaluator: evaluator,
		logger:    logger.With("module", "trigger_matcher"),
	}
}

// Match returns, in input order, the active triggers for eventType whose payload
// schema (when set) accepts payload and whose conditions hold against it.
func (tm *TriggerMatcher) Match(eventType string, payload map[string]any, triggers []*models.Trigger) []*models.Trigger {
	var matched []*models.Trigger

	tm.logger.Debug("Matching event against triggers", "event_type", eventType, "triggers_count", len(triggers))

	for _, trigger := range triggers {
		if ok, reason := tm.matchTrigger(eventType, payload, trigger); !ok {
			tm.logger.Debug("Trigger did not match", "trigger_id", trigger.ID, "reason", reason)

			continue
		}

		tm.logger.Debug("Trigger matched", "trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

		matched = append(matched, trigger)
	}

	tm.logger.Info("Completed trigger matching", "event_type", eventType, "matches_found", len(matched))

	return matched
}

func (tm *TriggerMatcher) matchTrigger(eventType string, payload map[string]any, trigger *models.Trigger) (bool, string) {
	switch {
	case trigger == nil:
		return false, "nil trigger"
	case !trigger.IsActive:
		return false, "inactive"
	case trigger.EventType != eventType:
		return false, "event type " + trigger.EventType
	}

	if len(trigger.PayloadSchema) > 0 {
		if err := validatePayload(trigger.PayloadSchema, payload); err != nil {
			return false, err.Error()
		}
	}

	if !tm.evaluator.Evaluate(trigger.Conditions, payload) {
		return false, "conditions not met"
	}

	return true, ""
}

// validatePayload checks payload against a JSON Schema document.
func validatePayload(schema map[string]any, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("payload schema: %w", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("payload schema validation failed: %s", strings.Join(problems, "; "))
	}

	return nil
}
