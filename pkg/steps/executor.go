// Package steps dispatches a single workflow step to its type-specific handler.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/dukex/bizflow/pkg/template"
	"github.com/jonboulle/clockwork"
)

// Invocation is one attempt of one step with its configuration already interpolated.
type Invocation struct {
	Step             models.Step
	Config           map[string]any
	Parameters       map[string]any
	ExecutionContext *models.ExecutionContext
}

// Executor dispatches steps by type to the injected collaborators.
type Executor struct {
	collaborators protocol.Collaborators
	clock         clockwork.Clock
	logger        *slog.Logger
}

func NewExecutor(collaborators protocol.Collaborators, clock clockwork.Clock, logger *slog.Logger) *Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Executor{
		collaborators: collaborators,
		clock:         clock,
		logger:        logger.With("module", "step_executor"),
	}
}

// Execute runs one attempt. Condition steps are evaluated by the runner and are
// rejected here as fatal, as are unknown types.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (any, error) {
	if inv.Step.Type == models.StepTypeCondition {
		return nil, protocol.Fatal(fmt.Errorf("condition step %s cannot be dispatched", inv.Step.ID))
	}

	config, err := models.DecodeStepConfig(inv.Step.Type, inv.Config)
	if err != nil {
		if inv.Step.Type == "" || !knownType(inv.Step.Type) {
			return nil, protocol.Fatal(err)
		}

		return nil, protocol.Validation(err)
	}

	if err := config.Validate(); err != nil {
		return nil, protocol.Validation(err)
	}

	logger := e.logger.With("step_id", inv.Step.ID, "step_type", inv.Step.Type)

	switch c := config.(type) {
	case models.EmailConfig:
		return e.email(ctx, c)
	case models.WebhookConfig:
		return e.webhook(ctx, c)
	case models.DelayConfig:
		return e.delay(ctx, c, logger)
	case models.NotificationConfig:
		return e.notification(ctx, c, inv)
	case models.AIConfig:
		return e.analyze(ctx, c, inv)
	case models.ActionConfig:
		return e.action(ctx, c, inv, logger)
	default:
		return nil, protocol.Fatal(fmt.Errorf("unsupported step type %q", inv.Step.Type))
	}
}

func knownType(t models.StepType) bool {
	switch t {
	case models.StepTypeAction, models.StepTypeCondition, models.StepTypeDelay, models.StepTypeWebhook,
		models.StepTypeEmail, models.StepTypeNotification, models.StepTypeGPT:
		return true
	default:
		return false
	}
}

func (e *Executor) email(ctx context.Context, c models.EmailConfig) (any, error) {
	if e.collaborators.Email == nil {
		return nil, protocol.Configurationf("no email sender configured")
	}

	recipients := splitRecipients(c.To)
	if len(recipients) == 0 {
		return nil, protocol.Validationf("email recipient 'to' is empty")
	}

	receipt, err := e.collaborators.Email.Send(ctx, protocol.EmailMessage{
		To:       recipients,
		From:     c.From,
		Subject:  c.Subject,
		Body:     c.Body,
		Template: c.Template,
	})
	if err != nil {
		return nil, fmt.Errorf("sending email: %w", err)
	}

	return receiptOutput(receipt), nil
}

func splitRecipients(to string) []string {
	var recipients []string

	for _, part := range strings.FieldsFunc(to, func(r rune) bool { return r == ',' || r == ';' }) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}

	return recipients
}

func (e *Executor) webhook(ctx context.Context, c models.WebhookConfig) (any, error) {
	if e.collaborators.Webhook == nil {
		return nil, protocol.Configurationf("no webhook client configured")
	}

	resp, err := e.collaborators.Webhook.Send(ctx, protocol.WebhookRequest{
		URL:     c.URL,
		Method:  c.MethodOrDefault(),
		Headers: c.Headers,
		Body:    c.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("calling webhook %s: %w", c.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, protocol.Transientf("webhook %s returned status %d", c.URL, resp.StatusCode)
	}

	headers := make(map[string]any, len(resp.Headers))
	for key, value := range resp.Headers {
		headers[key] = value
	}

	return map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       resp.Body,
	}, nil
}

func (e *Executor) delay(ctx context.Context, c models.DelayConfig, logger *slog.Logger) (any, error) {
	d, err := ParseDuration(c.Duration)
	if err != nil {
		return nil, protocol.Validation(err)
	}

	logger.Debug("Delaying run", "duration", d)

	if d > 0 {
		select {
		case <-e.clock.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return map[string]any{
		"waited":  d.String(),
		"seconds": d.Seconds(),
	}, nil
}

// DelayFor returns the pause a delay step will take, zero for other step types.
func DelayFor(step models.Step, config map[string]any) time.Duration {
	if step.Type != models.StepTypeDelay {
		return 0
	}

	d, err := ParseDuration(config["duration"])
	if err != nil {
		return 0
	}

	return d
}

func (e *Executor) notification(ctx context.Context, c models.NotificationConfig, inv Invocation) (any, error) {
	if e.collaborators.Notifications == nil {
		return nil, protocol.Configurationf("no notification creator configured")
	}

	n := protocol.Notification{
		UserID:   c.UserID,
		Title:    c.Title,
		Message:  c.Message,
		Level:    c.Level,
		Link:     c.Link,
		Category: c.Category,
	}
	if inv.ExecutionContext != nil {
		n.ExecutionID = inv.ExecutionContext.ExecutionID
		n.WorkflowID = inv.ExecutionContext.WorkflowID
	}

	if n.Level == "" {
		n.Level = "info"
	}

	receipt, err := e.collaborators.Notifications.Send(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	return receiptOutput(receipt), nil
}

func (e *Executor) analyze(ctx context.Context, c models.AIConfig, inv Invocation) (any, error) {
	if e.collaborators.AI == nil {
		return nil, protocol.Configurationf("no AI analyzer configured")
	}

	var scope map[string]any
	if inv.ExecutionContext != nil {
		scope = inv.ExecutionContext.Scope()
	}

	result, err := e.collaborators.AI.Analyze(ctx, protocol.AnalysisRequest{
		Model:        c.Model,
		Prompt:       c.Prompt,
		SystemPrompt: c.SystemPrompt,
		Context:      scope,
		MaxTokens:    c.MaxTokens,
		Temperature:  c.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("running analysis: %w", err)
	}

	return map[string]any{
		"model":   result.Model,
		"content": result.Content,
		"tokens":  result.Tokens,
	}, nil
}

func (e *Executor) action(ctx context.Context, c models.ActionConfig, inv Invocation, logger *slog.Logger) (any, error) {
	if e.collaborators.Actions == nil {
		return nil, protocol.Configurationf("no action registry configured")
	}

	action, err := e.collaborators.Actions.CreateAction(ctx, c.ActionType, c.Config)
	if err != nil {
		return nil, protocol.Configuration(err)
	}

	output, err := action.Execute(ctx, protocol.ActionInput{
		ExecutionContext: inv.ExecutionContext,
		Parameters:       inv.Parameters,
		Logger:           logger.With("action_type", c.ActionType),
	})
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", c.ActionType, err)
	}

	return output, nil
}

func receiptOutput(r protocol.Receipt) map[string]any {
	out := map[string]any{
		"id":     r.ID,
		"status": r.Status,
	}

	if r.Recipient != "" {
		out["recipient"] = r.Recipient
	}

	if !r.SentAt.IsZero() {
		out["sentAt"] = r.SentAt.UTC().Format(time.RFC3339)
	}

	return out
}

func interpolateParameters(params map[string]any, scope map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}

	return template.InterpolateMap(params, scope)
}

// Prepare interpolates a step's configuration and parameters against the run scope.
func Prepare(step models.Step, ec *models.ExecutionContext) Invocation {
	scope := ec.Scope()

	return Invocation{
		Step:             step,
		Config:           template.InterpolateMap(step.Configuration, scope),
		Parameters:       interpolateParameters(step.Parameters, scope),
		ExecutionContext: ec,
	}
}
