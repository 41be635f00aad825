// Package orchestrator drives work items through their workflow definition,
// step by step, until a terminal status is reached.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/clock"
	"github.com/rescindhq/rescind/pkg/eventbus"
	"github.com/rescindhq/rescind/pkg/events"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/otelhelper"
	"github.com/rescindhq/rescind/pkg/outcome"
	"github.com/rescindhq/rescind/pkg/persistence"
	"github.com/rescindhq/rescind/pkg/protocol"
	"github.com/rescindhq/rescind/pkg/recorder"
	"github.com/rescindhq/rescind/pkg/registry"
)

// Orchestrator walks one workflow definition over one work item. Invoke steps
// call a channel executor with the step's retry policy, wait steps suspend,
// terminal steps settle the item. Only transport errors are retried; business
// failures and configuration errors take the failure edge immediately.
type Orchestrator struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	recorder    *recorder.Recorder
	library     *flows.Library
	publisher   eventbus.EventPublisher
	sleeper     clock.Sleeper
	tracer      trace.Tracer
	logger      *slog.Logger
	workerID    string
}

func NewOrchestrator(
	p persistence.Persistence,
	reg *registry.Registry,
	library *flows.Library,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		persistence: p,
		registry:    reg,
		recorder:    recorder.NewRecorder(p.WorkItems(), logger),
		library:     library,
		publisher:   publisher,
		sleeper:     clock.Real{},
		tracer:      noop.NewTracerProvider().Tracer("orchestrator"),
		logger:      logger.With("module", "orchestrator"),
		workerID:    fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
	}
}

// WithSleeper replaces the sleeper used for retry backoff and wait steps.
func (o *Orchestrator) WithSleeper(sleeper clock.Sleeper) *Orchestrator {
	o.sleeper = sleeper
	o.recorder = o.recorder.WithSleeper(sleeper)

	return o
}

// WithTracer replaces the no-op tracer.
func (o *Orchestrator) WithTracer(tracer trace.Tracer) *Orchestrator {
	o.tracer = tracer

	return o
}

// WithWorkerID sets the worker identity stamped on published events.
func (o *Orchestrator) WithWorkerID(workerID string) *Orchestrator {
	o.workerID = workerID

	return o
}

// Run executes the claimed execution to completion. It finishes the execution
// handle on every path, including errors.
func (o *Orchestrator) Run(ctx context.Context, executionID string) error {
	execution, err := o.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	item, err := o.persistence.WorkItems().GetByID(ctx, execution.WorkItemID)
	if err != nil {
		return o.abort(ctx, execution, fmt.Errorf("failed to fetch work item %s: %w", execution.WorkItemID, err))
	}

	definition, ok := o.library.ByName(execution.WorkflowName)
	if !ok {
		return o.abort(ctx, execution, fmt.Errorf("workflow definition %q not found", execution.WorkflowName))
	}

	logger := o.logger.With(
		"execution_id", execution.ID,
		"work_item_id", item.ID,
		"workflow", definition.Name,
	)

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkItemIDKey, item.ID),
		attribute.String(otelhelper.WorkflowKey, definition.Name),
		attribute.String(otelhelper.WorkerIDKey, o.workerID),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting workflow execution")

	if err := o.recorder.UpdateStatus(ctx, item.ID, models.WorkItemStatusProcessing); err != nil {
		otelhelper.SetError(span, err)

		return o.abort(ctx, execution, err)
	}

	status, diagnostic, err := o.walk(ctx, execution, item, definition, logger)
	if err != nil {
		otelhelper.SetError(span, err)

		return o.abort(ctx, execution, err)
	}

	return o.settle(ctx, execution, item, status, diagnostic, logger)
}

// walk follows the step graph from the entry until an edge resolves to a
// terminal status. It returns that status and, on failure, the last diagnostic.
func (o *Orchestrator) walk(
	ctx context.Context,
	execution *models.Execution,
	item *models.WorkItem,
	definition *models.WorkflowDefinition,
	logger *slog.Logger,
) (models.WorkItemStatus, string, error) {
	current := definition.Entry

	var lastDiagnostic string

	for {
		step, found := definition.StepByName(current)
		if !found {
			status := models.WorkItemStatus(current)
			if status.Terminal() {
				return status, lastDiagnostic, nil
			}

			return "", "", fmt.Errorf("workflow %s: step %q not found", definition.Name, current)
		}

		stepLogger := logger.With("step", step.Name)

		switch step.Kind {
		case models.StepKindInvoke:
			out, err := o.runInvoke(ctx, execution, item, step, stepLogger)
			if err != nil {
				return "", "", err
			}

			if !out.Success {
				lastDiagnostic = out.Error
			}

			current = pickEdge(step, out.Success)
		case models.StepKindWait:
			if err := o.runWait(ctx, item, step, stepLogger); err != nil {
				return "", "", err
			}

			current = step.Next
		case models.StepKindTerminal:
			return step.Status, lastDiagnostic, nil
		default:
			return "", "", fmt.Errorf("workflow %s: step %q has unknown kind %q", definition.Name, step.Name, step.Kind)
		}
	}
}

// runInvoke calls the step's executor under its retry policy. Transport errors
// are retried with backoff; business failures and configuration errors are
// final on the first occurrence. Every attempt lands in the audit trail.
func (o *Orchestrator) runInvoke(
	ctx context.Context,
	execution *models.Execution,
	item *models.WorkItem,
	step models.Step,
	logger *slog.Logger,
) (models.Outcome, error) {
	executor, err := o.registry.CreateExecutor(step.Executor, map[string]any{})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create executor", "executor", step.Executor, "error", err)

		out := models.Outcome{Success: false, Error: err.Error()}
		if recErr := o.recordStep(ctx, item, step); recErr != nil {
			return out, recErr
		}

		return out, nil
	}

	request := protocol.ExecutionRequest{
		WorkItemID: item.ID,
		UserID:     item.UserID,
		Kind:       item.Kind,
		Metadata:   item.Metadata,
		Artifacts:  item.Artifacts,
	}

	var out models.Outcome

	for attempt := 0; attempt < step.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := step.Retry.Delay(attempt - 1)
			logger.InfoContext(ctx, "Retrying after transport failure", "attempt", attempt+1, "delay", delay)

			if err := o.sleeper.Sleep(ctx, delay); err != nil {
				return out, err
			}
		}

		o.publish(ctx, item.ID, events.ChannelAttemptStarted{
			BaseEvent:   o.baseEvent(events.ChannelAttemptStartedEvent, item.ID),
			ExecutionID: execution.ID,
			Method:      models.ChannelMethod(step.Executor),
			StepName:    step.Name,
			Attempt:     attempt + 1,
		})

		startedAt := time.Now().UTC()
		result, execErr := executor.Execute(ctx, request, logger)
		duration := time.Since(startedAt)

		out = outcome.Normalize(result, execErr)

		o.recordAttempt(ctx, item, result, out, startedAt, duration)

		o.publish(ctx, item.ID, events.ChannelAttemptFinished{
			BaseEvent:   o.baseEvent(events.ChannelAttemptFinishedEvent, item.ID),
			ExecutionID: execution.ID,
			Method:      out.Method,
			StepName:    step.Name,
			Outcome:     attemptOutcome(out),
			Diagnostic:  out.Error,
			DurationMs:  duration.Milliseconds(),
		})

		if out.Success {
			o.saveArtifacts(ctx, item, result)

			break
		}

		if !channels.IsTransport(execErr) {
			logger.InfoContext(ctx, "Channel failed without transport error, not retrying", "diagnostic", out.Error)

			break
		}

		logger.WarnContext(ctx, "Channel attempt hit transport failure", "attempt", attempt+1, "error", out.Error)
	}

	if err := o.recordStep(ctx, item, step); err != nil {
		return out, err
	}

	return out, nil
}

func (o *Orchestrator) runWait(ctx context.Context, item *models.WorkItem, step models.Step, logger *slog.Logger) error {
	if err := o.recordStep(ctx, item, step); err != nil {
		return err
	}

	wait := time.Duration(step.WaitSeconds) * time.Second
	logger.InfoContext(ctx, "Waiting before next step", "duration", wait)

	return o.sleeper.Sleep(ctx, wait)
}

// recordStep writes the step's progress status, if it declares one.
func (o *Orchestrator) recordStep(ctx context.Context, item *models.WorkItem, step models.Step) error {
	if step.Record == "" {
		return nil
	}

	return o.recorder.UpdateStatus(ctx, item.ID, step.Record)
}

// recordAttempt appends one invocation to the audit trail. A persistence
// failure here is logged but never aborts the workflow.
func (o *Orchestrator) recordAttempt(
	ctx context.Context,
	item *models.WorkItem,
	result *models.ChannelResult,
	out models.Outcome,
	startedAt time.Time,
	duration time.Duration,
) {
	attempt := &models.ChannelAttempt{
		ID:         uuid.New().String(),
		WorkItemID: item.ID,
		Method:     out.Method,
		StartedAt:  startedAt,
		DurationMs: duration.Milliseconds(),
		Outcome:    attemptOutcome(out),
		Diagnostic: out.Error,
	}
	if result != nil {
		attempt.ExternalReferenceID = result.ExternalReferenceID
	}

	if err := o.recorder.AppendAttempt(ctx, attempt); err != nil {
		o.logger.ErrorContext(ctx, "Failed to record channel attempt",
			"work_item_id", item.ID, "method", attempt.Method, "error", err)
	}
}

// saveArtifacts merges a successful result's references into the work item and
// into the in-flight copy so later steps of the same run see them.
func (o *Orchestrator) saveArtifacts(ctx context.Context, item *models.WorkItem, result *models.ChannelResult) {
	if result == nil || len(result.Artifacts) == 0 {
		return
	}

	o.recorder.SaveArtifacts(ctx, item.ID, result.Artifacts)

	if item.Artifacts == nil {
		item.Artifacts = make(map[string]any, len(result.Artifacts))
	}

	for key, value := range result.Artifacts {
		item.Artifacts[key] = value
	}
}

// settle writes the terminal work item status and closes the execution handle.
func (o *Orchestrator) settle(
	ctx context.Context,
	execution *models.Execution,
	item *models.WorkItem,
	status models.WorkItemStatus,
	diagnostic string,
	logger *slog.Logger,
) error {
	if err := o.recorder.UpdateStatus(ctx, item.ID, status); err != nil {
		return o.abort(ctx, execution, err)
	}

	duration := time.Since(execution.StartedAt)

	if status == models.WorkItemStatusFailed {
		o.publish(ctx, item.ID, events.WorkItemFailed{
			BaseEvent:   o.baseEvent(events.WorkItemFailedEvent, item.ID),
			ExecutionID: execution.ID,
			Error:       diagnostic,
			Duration:    duration,
		})

		logger.InfoContext(ctx, "Workflow exhausted every channel", "status", status, "diagnostic", diagnostic)

		return o.persistence.Executions().Finish(ctx, execution.ID, models.ExecutionStatusFailed, diagnostic)
	}

	o.publish(ctx, item.ID, events.WorkItemCompleted{
		BaseEvent:   o.baseEvent(events.WorkItemCompletedEvent, item.ID),
		ExecutionID: execution.ID,
		Status:      status,
		Duration:    duration,
	})

	logger.InfoContext(ctx, "Workflow completed", "status", status, "duration", duration)

	return o.persistence.Executions().Finish(ctx, execution.ID, models.ExecutionStatusCompleted, "")
}

// abort closes the execution handle after an unrecoverable orchestrator error.
func (o *Orchestrator) abort(ctx context.Context, execution *models.Execution, cause error) error {
	o.logger.ErrorContext(ctx, "Aborting workflow execution",
		"execution_id", execution.ID, "work_item_id", execution.WorkItemID, "error", cause)

	if err := o.persistence.Executions().Finish(ctx, execution.ID, models.ExecutionStatusFailed, cause.Error()); err != nil {
		o.logger.ErrorContext(ctx, "Failed to finish aborted execution", "execution_id", execution.ID, "error", err)
	}

	return cause
}

func (o *Orchestrator) publish(ctx context.Context, workItemID string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, workItemID, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "work_item_id", workItemID, "error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, workItemID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workItemID)
	base.WorkerID = o.workerID

	return base
}

func pickEdge(step models.Step, success bool) string {
	if success {
		return step.OnSuccess
	}

	return step.OnFailure
}

func attemptOutcome(out models.Outcome) models.AttemptOutcome {
	if out.Success {
		return models.AttemptOutcomeSuccess
	}

	return models.AttemptOutcomeFailure
}
