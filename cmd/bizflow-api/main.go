package main

import (
	"context"
	"os"

	"github.com/dukex/bizflow/pkg/cmd"
	"github.com/dukex/bizflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.BoolFlag{
			Name:    "forward-events",
			Usage:   "Publish POST /events to the event bus for a worker instead of running triggers in the API",
			Sources: cli.EnvVars("FORWARD_EVENTS"),
		},
	}, cmd.CommonFlags()...)

	command := &cli.Command{
		Name:                  "bizflow-api",
		Usage:                 "Manage workflows and triggers, run workflows on demand and ingest business events",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Bizflow API")

			rt, err := cmd.Open(ctx, command, logger, "bizflow-api")
			if err != nil {
				return err
			}
			defer rt.Close(ctx, logger)

			api, err := NewAPI(logger, rt, command.Bool("forward-events"))
			if err != nil {
				return err
			}

			return api.Start(int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("api").Error("API stopped", "error", err)
		os.Exit(1)
	}
}
