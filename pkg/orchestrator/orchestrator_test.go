package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rescindhq/rescind/pkg/channels"
	"github.com/rescindhq/rescind/pkg/clock"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/mocks"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence/file"
	"github.com/rescindhq/rescind/pkg/protocol"
	"github.com/rescindhq/rescind/pkg/registry"
)

type stubExecutor struct {
	calls int
	fn    func(req protocol.ExecutionRequest) (*models.ChannelResult, error)
}

func (s *stubExecutor) Execute(_ context.Context, req protocol.ExecutionRequest, _ *slog.Logger) (*models.ChannelResult, error) {
	s.calls++

	return s.fn(req)
}

type stubFactory struct {
	id       string
	executor protocol.ChannelExecutor
}

func (f *stubFactory) Create(_ map[string]any) (protocol.ChannelExecutor, error) {
	return f.executor, nil
}

func (f *stubFactory) ID() string {
	return f.id
}

func succeeding(method models.ChannelMethod, artifacts map[string]any) *stubExecutor {
	return &stubExecutor{fn: func(req protocol.ExecutionRequest) (*models.ChannelResult, error) {
		return &models.ChannelResult{
			Success:    true,
			Method:     method,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Artifacts:  artifacts,
		}, nil
	}}
}

func declining(method models.ChannelMethod, diagnostic string) *stubExecutor {
	return &stubExecutor{fn: func(req protocol.ExecutionRequest) (*models.ChannelResult, error) {
		return &models.ChannelResult{
			Success:    false,
			Method:     method,
			Merchant:   req.Metadata.Merchant,
			WorkItemID: req.WorkItemID,
			Diagnostic: diagnostic,
		}, nil
	}}
}

func failingTransport(method models.ChannelMethod) *stubExecutor {
	return &stubExecutor{fn: func(req protocol.ExecutionRequest) (*models.ChannelResult, error) {
		return nil, channels.NewTransportError(method, "call", channels.ErrUpstreamTimeout)
	}}
}

type harness struct {
	orchestrator *Orchestrator
	persistence  *file.Persistence
	sleeper      *clock.Fake
}

func newHarness(t *testing.T, executors map[string]protocol.ChannelExecutor) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	reg := registry.NewRegistry(logger)
	for id, executor := range executors {
		reg.RegisterExecutor(&stubFactory{id: id, executor: executor})
	}

	p := file.NewPersistence(t.TempDir())
	sleeper := &clock.Fake{}

	orch := NewOrchestrator(p, reg, flows.Default(), nil, logger).WithSleeper(sleeper)

	return &harness{orchestrator: orch, persistence: p, sleeper: sleeper}
}

func (h *harness) seed(t *testing.T, kind models.ActionKind, workflowName string) *models.Execution {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	item := &models.WorkItem{
		ID:     "x1",
		UserID: "u1",
		Kind:   kind,
		Status: models.WorkItemStatusPending,
		Metadata: models.WorkItemMetadata{
			Merchant:     "Netflix",
			Amount:       15.99,
			Date:         "2025-01-01",
			AccountLast4: "1234",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, h.persistence.WorkItems().Save(ctx, item))

	execution := &models.Execution{
		ID:           "exec-test",
		WorkItemID:   item.ID,
		WorkflowName: workflowName,
		Status:       models.ExecutionStatusStarted,
		StartedAt:    now,
	}
	require.NoError(t, h.persistence.Executions().Claim(ctx, execution))

	return execution
}

func TestRun_APISuccessShortCircuits(t *testing.T) {
	email := declining(models.ChannelMethodEmail, "should not run")
	voice := declining(models.ChannelMethodVoice, "should not run")

	h := newHarness(t, map[string]protocol.ChannelExecutor{
		"api":   succeeding(models.ChannelMethodAPI, map[string]any{"cancellation_id": "cnl-1"}),
		"email": email,
		"voice": voice,
	})

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindCancel, "cancel-flow")

	require.NoError(t, h.orchestrator.Run(ctx, execution.ID))

	item, err := h.persistence.WorkItems().GetByID(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusCancelled, item.Status)
	assert.Equal(t, "cnl-1", item.Artifacts["cancellation_id"])

	attempts, err := h.persistence.WorkItems().Attempts(ctx, "x1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.ChannelMethodAPI, attempts[0].Method)
	assert.Equal(t, models.AttemptOutcomeSuccess, attempts[0].Outcome)

	assert.Zero(t, email.calls)
	assert.Zero(t, voice.calls)

	finished, err := h.persistence.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, finished.Status)
}

func TestRun_ExhaustiveFallbackFails(t *testing.T) {
	h := newHarness(t, map[string]protocol.ChannelExecutor{
		"api":   declining(models.ChannelMethodAPI, "merchant has no cancellation API"),
		"email": declining(models.ChannelMethodEmail, "no support contact on file"),
		"voice": declining(models.ChannelMethodVoice, "call could not be completed"),
	})

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindCancel, "cancel-flow")

	require.NoError(t, h.orchestrator.Run(ctx, execution.ID))

	item, err := h.persistence.WorkItems().GetByID(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusFailed, item.Status)

	attempts, err := h.persistence.WorkItems().Attempts(ctx, "x1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, models.ChannelMethodAPI, attempts[0].Method)
	assert.Equal(t, models.ChannelMethodEmail, attempts[1].Method)
	assert.Equal(t, models.ChannelMethodVoice, attempts[2].Method)

	finished, err := h.persistence.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, finished.Status)
	assert.Equal(t, "call could not be completed", finished.Error)
}

func TestRun_TransportErrorRetriedWithBackoff(t *testing.T) {
	api := failingTransport(models.ChannelMethodAPI)

	h := newHarness(t, map[string]protocol.ChannelExecutor{
		"api":   api,
		"email": succeeding(models.ChannelMethodEmail, nil),
		"voice": declining(models.ChannelMethodVoice, "should not run"),
	})

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindCancel, "cancel-flow")

	require.NoError(t, h.orchestrator.Run(ctx, execution.ID))

	// API policy: 2 attempts at 3s base interval.
	assert.Equal(t, 2, api.calls)
	require.Len(t, h.sleeper.Slept, 1)
	assert.Equal(t, 3*time.Second, h.sleeper.Slept[0])

	item, err := h.persistence.WorkItems().GetByID(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusCancelled, item.Status)

	attempts, err := h.persistence.WorkItems().Attempts(ctx, "x1")
	require.NoError(t, err)
	// 2 failed API attempts plus 1 email success.
	require.Len(t, attempts, 3)
	assert.Equal(t, models.AttemptOutcomeFailure, attempts[0].Outcome)
	assert.Equal(t, models.AttemptOutcomeFailure, attempts[1].Outcome)
	assert.Equal(t, models.AttemptOutcomeSuccess, attempts[2].Outcome)
}

func TestRun_BusinessFailureNeverRetried(t *testing.T) {
	api := declining(models.ChannelMethodAPI, "merchant declined cancellation request")

	h := newHarness(t, map[string]protocol.ChannelExecutor{
		"api":   api,
		"email": succeeding(models.ChannelMethodEmail, nil),
		"voice": declining(models.ChannelMethodVoice, "should not run"),
	})

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindCancel, "cancel-flow")

	require.NoError(t, h.orchestrator.Run(ctx, execution.ID))

	assert.Equal(t, 1, api.calls)
	assert.Empty(t, h.sleeper.Slept)
}

func TestRun_ConfigurationErrorFailsFast(t *testing.T) {
	voice := &stubExecutor{fn: func(req protocol.ExecutionRequest) (*models.ChannelResult, error) {
		return nil, channels.NewConfigurationError(models.ChannelMethodVoice, channels.ErrNoDestination)
	}}

	h := newHarness(t, map[string]protocol.ChannelExecutor{
		"api":   declining(models.ChannelMethodAPI, "merchant has no cancellation API"),
		"email": declining(models.ChannelMethodEmail, "no support contact on file"),
		"voice": voice,
	})

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindCancel, "cancel-flow")

	require.NoError(t, h.orchestrator.Run(ctx, execution.ID))

	assert.Equal(t, 1, voice.calls)
	assert.Empty(t, h.sleeper.Slept)

	item, err := h.persistence.WorkItems().GetByID(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusFailed, item.Status)
}

func TestRun_DisputeFlowRecordsCaseID(t *testing.T) {
	voice := succeeding(models.ChannelMethodVoice, map[string]any{"call_id": "cal-42"})

	verify := &stubExecutor{fn: func(req protocol.ExecutionRequest) (*models.ChannelResult, error) {
		// The verification step reads the call placed before the wait window.
		callID, _ := req.Artifacts["call_id"].(string)
		if callID == "" {
			return &models.ChannelResult{
				Success:    false,
				Method:     models.ChannelMethodVoice,
				WorkItemID: req.WorkItemID,
				Diagnostic: "no call to verify",
			}, nil
		}

		return &models.ChannelResult{
			Success:    true,
			Method:     models.ChannelMethodVoice,
			WorkItemID: req.WorkItemID,
			Artifacts:  map[string]any{"case_id": "cse-7", "outcome": "dispute_submitted"},
		}, nil
	}}

	h := newHarness(t, map[string]protocol.ChannelExecutor{
		"voice":        voice,
		"voice-verify": verify,
	})

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindDispute, "dispute-flow")

	require.NoError(t, h.orchestrator.Run(ctx, execution.ID))

	item, err := h.persistence.WorkItems().GetByID(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusDisputed, item.Status)
	assert.Equal(t, "cal-42", item.Artifacts["call_id"])
	assert.Equal(t, "cse-7", item.Artifacts["case_id"])

	// The wait window between the call and the verification.
	require.Len(t, h.sleeper.Slept, 1)
	assert.Equal(t, 300*time.Second, h.sleeper.Slept[0])
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	h := newHarness(t, map[string]protocol.ChannelExecutor{
		"api": succeeding(models.ChannelMethodAPI, nil),
	})

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "x1", mock.Anything).Return(nil)

	h.orchestrator.publisher = bus

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindCancel, "cancel-flow")

	require.NoError(t, h.orchestrator.Run(ctx, execution.ID))

	// Attempt started, attempt finished, work item completed.
	bus.AssertNumberOfCalls(t, "Publish", 3)
}

func TestRun_UnknownWorkflowAbortsExecution(t *testing.T) {
	h := newHarness(t, map[string]protocol.ChannelExecutor{})

	ctx := context.Background()
	execution := h.seed(t, models.ActionKindCancel, "no-such-flow")

	err := h.orchestrator.Run(ctx, execution.ID)
	require.Error(t, err)

	finished, getErr := h.persistence.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.ExecutionStatusFailed, finished.Status)
}
