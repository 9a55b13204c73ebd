// Package main provides the Bizflow API server implementation.
package main

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/dukex/bizflow/pkg/cmd"
	"github.com/dukex/bizflow/pkg/eventbus"
	"github.com/dukex/bizflow/pkg/services"
	"github.com/dukex/bizflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	runtime  *cmd.Runtime
	events   web.EventIngester
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, runtime *cmd.Runtime, forwardEvents bool) (*API, error) {
	var events web.EventIngester = runtime.Engine

	if forwardEvents {
		if runtime.Bus == nil {
			return nil, errors.New("--forward-events requires --event-bus")
		}

		events = eventbus.NewForwarder(runtime.Bus)
	}

	return &API{
		logger:   logger,
		runtime:  runtime,
		events:   events,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() *fiber.App {
	p := a.runtime.Persistence
	config := a.runtime.Config

	workflowService := services.NewWorkflow(p,
		services.WithActionCatalog(a.runtime.Registry),
		services.WithDefaultTimeout(config.DefaultTimeoutSeconds),
		services.WithMaxRetryCount(config.MaxRetryCount),
		services.WithDefaultBackoff(config.Backoff.Strategy, config.Backoff.MaxDelaySeconds),
	)

	handlers := web.NewAPIHandlers(
		workflowService,
		services.NewTrigger(p),
		services.NewExecution(p.ExecutionRepository()),
		a.runtime.Engine,
		a.events,
		a.runtime.Registry,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Bizflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	a.logger.Info("Starting API", "port", port)

	return a.App().Listen(":" + strconv.Itoa(port))
}
