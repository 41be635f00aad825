package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rescindhq/rescind/pkg/events"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/mocks"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence/file"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *file.Persistence, *mocks.MockEventBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := file.NewPersistence(t.TempDir())
	bus := &mocks.MockEventBus{}

	d := NewDispatcher(p, flows.Default(), bus, validator.New(validator.WithRequiredStructEnabled()), logger)

	return d, p, bus
}

func validRequest(action models.ActionKind) Request {
	return Request{
		Action:     action,
		WorkItemID: "x1",
		UserID:     "u1",
		Metadata: models.WorkItemMetadata{
			Merchant:     "Netflix",
			Amount:       15.99,
			Date:         "2025-01-01",
			AccountLast4: "1234",
		},
	}
}

func TestDispatch_MissingUserIDShortCircuits(t *testing.T) {
	d, p, bus := newTestDispatcher(t)

	req := validRequest(models.ActionKindCancel)
	req.UserID = ""

	result, err := d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsValidation(err))

	// No work item created, no event published.
	_, getErr := p.WorkItems().GetByID(context.Background(), "x1")
	assert.Error(t, getErr)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_CancelNeedsMerchant(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	req := validRequest(models.ActionKindCancel)
	req.Metadata.Merchant = ""

	_, err := d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestDispatch_KeepCompletesSynchronously(t *testing.T) {
	d, p, bus := newTestDispatcher(t)

	req := Request{
		Action:     models.ActionKindKeep,
		WorkItemID: "x1",
		UserID:     "u1",
	}

	result, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, string(models.ExecutionStatusCompleted), result.Status)
	assert.Empty(t, result.ExecutionID)

	item, err := p.WorkItems().GetByID(context.Background(), "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusKept, item.Status)

	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_UnknownActionRejected(t *testing.T) {
	d, _, bus := newTestDispatcher(t)

	req := validRequest("invalid_value")

	result, err := d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrUnknownAction))

	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_CancelStartsExecution(t *testing.T) {
	d, p, bus := newTestDispatcher(t)

	bus.On("Publish", mock.Anything, "x1", mock.AnythingOfType("events.WorkItemDispatched")).Return(nil)

	result, err := d.Dispatch(context.Background(), validRequest(models.ActionKindCancel))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, string(models.ExecutionStatusStarted), result.Status)
	assert.NotEmpty(t, result.ExecutionID)
	assert.Equal(t, "cancel-flow", result.WorkflowName)
	require.NotNil(t, result.EstimatedCompletionTime)

	item, err := p.WorkItems().GetByID(context.Background(), "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusPending, item.Status)

	execution, err := p.Executions().GetByID(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.True(t, execution.Active())

	bus.AssertExpectations(t)
}

func TestDispatch_InFlightExecutionReturnedNotDuplicated(t *testing.T) {
	d, p, bus := newTestDispatcher(t)

	bus.On("Publish", mock.Anything, "x1", mock.Anything).Return(nil)

	first, err := d.Dispatch(context.Background(), validRequest(models.ActionKindCancel))
	require.NoError(t, err)

	second, err := d.Dispatch(context.Background(), validRequest(models.ActionKindCancel))
	require.NoError(t, err)

	assert.Equal(t, first.ExecutionID, second.ExecutionID)
	assert.Equal(t, "execution already in flight", second.Message)

	// Only the first dispatch publishes.
	bus.AssertNumberOfCalls(t, "Publish", 1)

	active, err := p.Executions().ActiveByWorkItem(context.Background(), "x1")
	require.NoError(t, err)
	assert.Equal(t, first.ExecutionID, active.ID)
}

func TestDispatch_SettledItemNotRestarted(t *testing.T) {
	d, p, bus := newTestDispatcher(t)

	req := validRequest(models.ActionKindCancel)

	item := &models.WorkItem{
		ID:       req.WorkItemID,
		UserID:   req.UserID,
		Kind:     models.ActionKindCancel,
		Status:   models.WorkItemStatusCancelled,
		Metadata: req.Metadata,
	}
	require.NoError(t, p.WorkItems().Save(context.Background(), item))

	result, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionStatusCompleted), result.Status)
	assert.Empty(t, result.ExecutionID)

	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_PublishFailureReleasesClaim(t *testing.T) {
	d, p, bus := newTestDispatcher(t)

	bus.On("Publish", mock.Anything, "x1", mock.Anything).Return(errors.New("broker down")).Once()

	_, err := d.Dispatch(context.Background(), validRequest(models.ActionKindCancel))
	require.Error(t, err)

	// The claim must be released so a later dispatch can start.
	bus.On("Publish", mock.Anything, "x1", mock.Anything).Return(nil)

	result, err := d.Dispatch(context.Background(), validRequest(models.ActionKindCancel))
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionStatusStarted), result.Status)

	active, err := p.Executions().ActiveByWorkItem(context.Background(), "x1")
	require.NoError(t, err)
	assert.Equal(t, result.ExecutionID, active.ID)
}

// Event type sanity for the worker's handler switch.
func TestDispatch_EventCarriesWorkflowName(t *testing.T) {
	d, _, bus := newTestDispatcher(t)

	var captured events.WorkItemDispatched

	bus.On("Publish", mock.Anything, "x1", mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(2).(events.WorkItemDispatched)
	}).Return(nil)

	result, err := d.Dispatch(context.Background(), validRequest(models.ActionKindDispute))
	require.NoError(t, err)

	assert.Equal(t, "dispute-flow", captured.WorkflowName)
	assert.Equal(t, result.ExecutionID, captured.ExecutionID)
	assert.Equal(t, "u1", captured.UserID)
}
