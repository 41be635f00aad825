package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rescindhq/rescind/pkg/eventbus"
	"github.com/rescindhq/rescind/pkg/events"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/orchestrator"
	"github.com/rescindhq/rescind/pkg/otelhelper"
	"github.com/rescindhq/rescind/pkg/persistence"
	"github.com/rescindhq/rescind/pkg/registry"
)

type WorkerManager struct {
	id           string
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	eventBus     eventbus.EventBus
	orchestrator *orchestrator.Orchestrator
}

func NewWorkerManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *registry.Registry,
	library *flows.Library,
) *WorkerManager {
	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "rescind-worker", "worker_id", id),
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		orchestrator: orchestrator.NewOrchestrator(persistence, registry, library, eventBus, logger).
			WithWorkerID(id),
	}
}

// EnableTracing wires an OTLP tracer into the orchestrator.
func (w *WorkerManager) EnableTracing(ctx context.Context) error {
	tracer, err := otelhelper.NewTracer(ctx, "rescind-worker")
	if err != nil {
		return err
	}

	w.orchestrator = w.orchestrator.WithTracer(tracer)

	return nil
}

func (w *WorkerManager) Start(ctx context.Context, sweepSchedule string) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.WorkItemDispatchedEvent, w.handleWorkItemDispatched)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	sweeper := NewStaleSweeper(w.persistence, w.logger)

	if err := sweeper.Start(sweepSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleWorkItemDispatched(ctx context.Context, event any) error {
	dispatched, ok := event.(*events.WorkItemDispatched)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for WorkItemDispatched")

		return nil
	}

	logger := w.logger.With(
		"work_item_id", dispatched.WorkItemID,
		"execution_id", dispatched.ExecutionID,
		"event_id", dispatched.ID,
	)
	logger.InfoContext(ctx, "Processing dispatched work item")

	err := w.orchestrator.Run(ctx, dispatched.ExecutionID)
	if err != nil {
		// The orchestrator already settled the execution handle; a redelivery
		// would only race the finished state.
		logger.ErrorContext(ctx, "Workflow execution failed", "error", err)
	}

	return nil
}
