package cmd

import (
	"log/slog"

	"github.com/dukex/bizflow/pkg/config"
	"github.com/dukex/bizflow/pkg/delivery/ai"
	"github.com/dukex/bizflow/pkg/delivery/email"
	"github.com/dukex/bizflow/pkg/delivery/notification"
	"github.com/dukex/bizflow/pkg/delivery/webhook"
	"github.com/dukex/bizflow/pkg/eventbus"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/dukex/bizflow/pkg/registry"
	"github.com/dukex/bizflow/pkg/steps"
	"github.com/dukex/bizflow/pkg/workflow"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// EngineDeps are the pieces a binary has already opened.
type EngineDeps struct {
	Config      config.EngineConfig
	Persistence persistence.Persistence
	Actions     *registry.Registry
	// Bus is optional. Without it notification steps are not configured and no
	// lifecycle events are published.
	Bus    eventbus.EventBus
	Tracer trace.Tracer
}

// NewCollaborators builds the delivery collaborators described by the engine config.
// An AI analyzer is only configured when an API key is present.
func NewCollaborators(deps EngineDeps, logger *slog.Logger) protocol.Collaborators {
	c := deps.Config
	collaborators := protocol.Collaborators{
		Email: email.NewSender(email.Config{
			Host:     c.SMTP.Host,
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
			From:     c.SMTP.From,
		}, logger),
		Webhook: webhook.NewClient(c.Webhook.Timeout(), logger),
	}

	if deps.Actions != nil {
		collaborators.Actions = deps.Actions
	}

	if deps.Bus != nil {
		collaborators.Notifications = notification.NewCreator(deps.Bus, logger)
	}

	if c.AI.APIKey != "" {
		collaborators.AI = ai.NewClient(ai.Config{
			BaseURL: c.AI.BaseURL,
			APIKey:  c.AI.APIKey,
			Model:   c.AI.Model,
			Timeout: c.AI.Timeout(),
		}, logger)
	}

	return collaborators
}

// NewEngine wires the step executor, runner, trigger matcher and engine.
func NewEngine(deps EngineDeps, logger *slog.Logger) *workflow.Engine {
	clock := clockwork.NewRealClock()
	executor := steps.NewExecutor(NewCollaborators(deps, logger), clock, logger)

	runnerOpts := []workflow.RunnerOption{workflow.WithClock(clock)}
	if deps.Bus != nil {
		runnerOpts = append(runnerOpts, workflow.WithEventPublisher(deps.Bus))
	}

	if deps.Tracer != nil {
		runnerOpts = append(runnerOpts, workflow.WithTracer(deps.Tracer))
	}

	runner := workflow.NewRunner(executor, deps.Persistence.ExecutionRepository(), nil, logger, runnerOpts...)

	return workflow.NewEngine(
		persistence.NewStore(deps.Persistence),
		runner,
		workflow.NewTriggerMatcher(nil, logger),
		logger,
		workflow.WithEventRepository(deps.Persistence.EventRepository()),
	)
}
