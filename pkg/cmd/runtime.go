package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/bizflow/pkg/config"
	"github.com/dukex/bizflow/pkg/eventbus"
	"github.com/dukex/bizflow/pkg/otelhelper"
	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/registry"
	"github.com/dukex/bizflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

// Runtime is everything a binary opens from the common flags.
type Runtime struct {
	Config      config.EngineConfig
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Bus         eventbus.EventBus
	Engine      *workflow.Engine

	closers []func(ctx context.Context) error
}

// Open builds a Runtime from the common flags. On error everything opened so far
// is closed again.
func Open(ctx context.Context, command *cli.Command, logger *slog.Logger, serviceName string) (rt *Runtime, err error) {
	rt = &Runtime{}

	defer func() {
		if err != nil {
			rt.Close(ctx, logger)
			rt = nil
		}
	}()

	if rt.Config, err = LoadEngineConfig(command); err != nil {
		return rt, err
	}

	if rt.Registry, err = NewRegistry(logger, command.String("plugins-path")); err != nil {
		return rt, err
	}

	base, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return rt, err
	}

	rt.closers = append(rt.closers, base.Close)

	if rt.Persistence, err = WithExecutionStore(ctx, logger, base, command.String("execution-store")); err != nil {
		return rt, err
	}

	if rt.Persistence != base {
		rt.closers[len(rt.closers)-1] = rt.Persistence.Close
	}

	if rt.Bus, err = NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger); err != nil {
		return rt, err
	}

	if rt.Bus != nil {
		bus := rt.Bus
		rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })
	}

	deps := EngineDeps{
		Config:      rt.Config,
		Persistence: rt.Persistence,
		Actions:     rt.Registry,
		Bus:         rt.Bus,
	}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return rt, err
		}

		deps.Tracer = tracer
		rt.closers = append(rt.closers, shutdown)
	}

	rt.Engine = NewEngine(deps, logger)

	return rt, nil
}

// Close releases resources in reverse order of opening.
func (rt *Runtime) Close(ctx context.Context, logger *slog.Logger) {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}

	rt.closers = nil

	if err := errors.Join(errs...); err != nil {
		logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
	}
}
