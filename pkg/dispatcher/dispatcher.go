// Package dispatcher is the entry point for action requests. It validates the
// request, short-circuits keep actions, and starts a workflow execution for
// cancel and dispute actions.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rescindhq/rescind/pkg/eventbus"
	"github.com/rescindhq/rescind/pkg/events"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// Request is one action request for a detection item.
type Request struct {
	Action     models.ActionKind       `json:"action"       validate:"required"`
	WorkItemID string                  `json:"work_item_id" validate:"required"`
	UserID     string                  `json:"user_id"      validate:"required"`
	Metadata   models.WorkItemMetadata `json:"metadata"`
}

// Result is the structured response every dispatch produces. Keep actions
// complete synchronously; cancel and dispute return a started execution handle.
type Result struct {
	Success                 bool              `json:"success"`
	WorkItemID              string            `json:"work_item_id"`
	Action                  models.ActionKind `json:"action"`
	Status                  string            `json:"status"`
	ExecutionID             string            `json:"execution_id,omitempty"`
	WorkflowName            string            `json:"workflow_name,omitempty"`
	EstimatedCompletionTime *time.Time        `json:"estimated_completion_time,omitempty"`
	Message                 string            `json:"message,omitempty"`
}

type Dispatcher struct {
	persistence persistence.Persistence
	library     *flows.Library
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewDispatcher(
	p persistence.Persistence,
	library *flows.Library,
	publisher eventbus.EventPublisher,
	validate *validator.Validate,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		persistence: p,
		library:     library,
		publisher:   publisher,
		validate:    validate,
		logger:      logger.With("module", "dispatcher"),
	}
}

// Dispatch handles one action request. Validation failures and unknown actions
// return before any work item state changes.
func (d *Dispatcher) Dispatch(ctx context.Context, request Request) (*Result, error) {
	if err := d.validateRequest(request); err != nil {
		return nil, err
	}

	switch request.Action {
	case models.ActionKindKeep:
		return d.keep(ctx, request)
	case models.ActionKindCancel, models.ActionKindDispute:
		return d.start(ctx, request)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, request.Action)
	}
}

// validateRequest checks the base fields for every action. Channel execution
// additionally needs the merchant.
func (d *Dispatcher) validateRequest(request Request) error {
	if err := d.validate.StructPartial(request, "Action", "WorkItemID", "UserID"); err != nil {
		return &ValidationError{Err: err}
	}

	if request.Action == models.ActionKindCancel || request.Action == models.ActionKindDispute {
		if err := d.validate.Struct(request); err != nil {
			return &ValidationError{Err: err}
		}
	}

	return nil
}

// keep settles the item immediately. No channel is ever invoked.
func (d *Dispatcher) keep(ctx context.Context, request Request) (*Result, error) {
	item, err := d.loadOrCreateItem(ctx, request)
	if err != nil {
		return nil, err
	}

	if !item.Status.Terminal() {
		err := d.persistence.WorkItems().UpdateStatus(ctx, item.ID, models.WorkItemStatusKept)
		if err != nil {
			return nil, err
		}
	}

	d.logger.InfoContext(ctx, "Work item kept", "work_item_id", item.ID, "user_id", request.UserID)

	return &Result{
		Success:    true,
		WorkItemID: item.ID,
		Action:     request.Action,
		Status:     string(models.ExecutionStatusCompleted),
		Message:    "subscription kept, no cancellation attempted",
	}, nil
}

// start claims a workflow execution for the item. A request arriving while a
// prior execution is still in flight returns that execution's handle instead
// of starting a duplicate.
func (d *Dispatcher) start(ctx context.Context, request Request) (*Result, error) {
	definition, ok := d.library.ForAction(request.Action)
	if !ok {
		return nil, fmt.Errorf("%w: no workflow handles %q", ErrUnknownAction, request.Action)
	}

	item, err := d.loadOrCreateItem(ctx, request)
	if err != nil {
		return nil, err
	}

	if item.Status.Terminal() {
		return &Result{
			Success:    true,
			WorkItemID: item.ID,
			Action:     request.Action,
			Status:     string(models.ExecutionStatusCompleted),
			Message:    fmt.Sprintf("work item already settled as %s", item.Status),
		}, nil
	}

	estimated := time.Now().UTC().Add(definition.EstimatedDuration())
	execution := &models.Execution{
		ID:                      fmt.Sprintf("exec-%s", uuid.New().String()[:8]),
		WorkItemID:              item.ID,
		WorkflowName:            definition.Name,
		Status:                  models.ExecutionStatusStarted,
		StartedAt:               time.Now().UTC(),
		EstimatedCompletionTime: estimated,
	}

	if err := d.persistence.Executions().Claim(ctx, execution); err != nil {
		if persistence.IsExecutionActive(err) {
			return d.existingHandle(ctx, item, request)
		}

		return nil, err
	}

	event := events.WorkItemDispatched{
		BaseEvent:    events.NewBaseEvent(events.WorkItemDispatchedEvent, item.ID),
		ExecutionID:  execution.ID,
		UserID:       request.UserID,
		Action:       request.Action,
		WorkflowName: definition.Name,
		ItemMetadata: request.Metadata,
	}
	if err := d.publisher.Publish(ctx, item.ID, event); err != nil {
		// The claim is already taken; release it so the item is not stuck.
		finishErr := d.persistence.Executions().Finish(ctx, execution.ID, models.ExecutionStatusFailed, err.Error())
		if finishErr != nil {
			d.logger.ErrorContext(ctx, "Failed to release execution after publish failure",
				"execution_id", execution.ID, "error", finishErr)
		}

		return nil, fmt.Errorf("failed to publish dispatch event: %w", err)
	}

	d.logger.InfoContext(ctx, "Started workflow execution",
		"work_item_id", item.ID, "execution_id", execution.ID, "workflow", definition.Name)

	return &Result{
		Success:                 true,
		WorkItemID:              item.ID,
		Action:                  request.Action,
		Status:                  string(models.ExecutionStatusStarted),
		ExecutionID:             execution.ID,
		WorkflowName:            definition.Name,
		EstimatedCompletionTime: &estimated,
	}, nil
}

func (d *Dispatcher) existingHandle(ctx context.Context, item *models.WorkItem, request Request) (*Result, error) {
	active, err := d.persistence.Executions().ActiveByWorkItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	d.logger.InfoContext(ctx, "Returning in-flight execution",
		"work_item_id", item.ID, "execution_id", active.ID)

	return &Result{
		Success:                 true,
		WorkItemID:              item.ID,
		Action:                  request.Action,
		Status:                  string(active.Status),
		ExecutionID:             active.ID,
		WorkflowName:            active.WorkflowName,
		EstimatedCompletionTime: &active.EstimatedCompletionTime,
		Message:                 "execution already in flight",
	}, nil
}

func (d *Dispatcher) loadOrCreateItem(ctx context.Context, request Request) (*models.WorkItem, error) {
	item, err := d.persistence.WorkItems().GetByID(ctx, request.WorkItemID)
	if err == nil {
		return item, nil
	}

	if !persistence.IsWorkItemNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	item = &models.WorkItem{
		ID:        request.WorkItemID,
		UserID:    request.UserID,
		Kind:      request.Action,
		Status:    models.WorkItemStatusPending,
		Metadata:  request.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.persistence.WorkItems().Save(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}
