package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/bizflow/pkg/cmd"
	"github.com/dukex/bizflow/pkg/log"
	"github.com/dukex/bizflow/pkg/scheduler"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.BoolFlag{
			Name:    "scheduler",
			Usage:   "Fire cron-scheduled triggers from this worker",
			Value:   true,
			Sources: cli.EnvVars("SCHEDULER_ENABLED"),
		},
		&cli.DurationFlag{
			Name:    "schedule-refresh",
			Usage:   "How often scheduled triggers are reloaded",
			Value:   scheduler.DefaultRefreshInterval,
			Sources: cli.EnvVars("SCHEDULE_REFRESH"),
		},
	}, cmd.CommonFlags()...)

	command := &cli.Command{
		Name:                  "bizflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Run triggered and scheduled workflows",
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("bizflow-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Bizflow Worker")

			rt, err := cmd.Open(ctx, command, logger, "bizflow-worker")
			if err != nil {
				return err
			}
			defer rt.Close(context.Background(), logger)

			var sched Scheduler
			if command.Bool("scheduler") {
				sched = scheduler.New(rt.Persistence.TriggerRepository(), rt.Engine, logger,
					scheduler.WithRefreshInterval(command.Duration("schedule-refresh")))
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			worker := NewWorkerManager(workerID, rt.Engine, rt.Bus, sched, logger)
			if err := worker.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return worker.Stop(shutdownCtx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("bizflow-worker").Error("Worker stopped", "error", err)
		os.Exit(1)
	}
}
