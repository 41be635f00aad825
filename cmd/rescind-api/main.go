package main

import (
	"context"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/rescindhq/rescind/pkg/cmd"
	"github.com/rescindhq/rescind/pkg/eventbus"
	"github.com/rescindhq/rescind/pkg/events"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/log"
	"github.com/rescindhq/rescind/pkg/orchestrator"
	"github.com/rescindhq/rescind/pkg/persistence"
	"github.com/rescindhq/rescind/pkg/registry"
)

const defaultPort = 9191

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "rescind-api",
		Usage:                 "Dispatch cancellation and dispute workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "definitions-path",
				Usage:   "Workflow definition file overriding the built-in flows",
				Value:   "",
				Sources: cli.EnvVars("DEFINITIONS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Rescind API")

			library := flows.Default()

			if path := command.String("definitions-path"); path != "" {
				loaded, err := flows.Load(path)
				if err != nil {
					return err
				}

				library = loaded
			}

			registry := cmd.NewRegistry(logger)
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if command.String("event-bus") == "gochannel" {
				// No broker means no worker process; run executions in-process
				// so dispatched work items still settle.
				if err := runInlineWorker(ctx, logger, persistence, registry, library, eventBus); err != nil {
					return err
				}
			}

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
				library,
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func runInlineWorker(
	ctx context.Context,
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	library *flows.Library,
	eventBus eventbus.EventBus,
) error {
	orch := orchestrator.NewOrchestrator(p, reg, library, eventBus, logger).
		WithWorkerID("api-inline")

	err := eventBus.Handle(events.WorkItemDispatchedEvent, func(ctx context.Context, event any) error {
		dispatched, ok := event.(*events.WorkItemDispatched)
		if !ok {
			logger.ErrorContext(ctx, "Invalid event type for WorkItemDispatched")

			return nil
		}

		if err := orch.Run(ctx, dispatched.ExecutionID); err != nil {
			logger.ErrorContext(ctx, "Workflow execution failed",
				"execution_id", dispatched.ExecutionID, "error", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		if err := eventBus.Subscribe(ctx); err != nil {
			logger.ErrorContext(ctx, "In-process event subscription stopped", "error", err)
		}
	}()

	return nil
}
