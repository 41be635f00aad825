package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, IntervalSeconds: 2, BackoffRate: 2.0}

	assert.Equal(t, 2*time.Second, policy.Delay(0))
	assert.Equal(t, 4*time.Second, policy.Delay(1))
	assert.Equal(t, 8*time.Second, policy.Delay(2))
}

func TestRetryPolicy_DelayWithoutBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, IntervalSeconds: 5}

	assert.Equal(t, 5*time.Second, policy.Delay(0))
	assert.Equal(t, 5*time.Second, policy.Delay(3))
	assert.Equal(t, 5*time.Second, policy.Delay(-1))
}

func TestRetryPolicy_MaxDelay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, IntervalSeconds: 2, BackoffRate: 2.0}

	// One delay before the second attempt, one before the third.
	assert.Equal(t, 6*time.Second, policy.MaxDelay())

	single := RetryPolicy{MaxAttempts: 1, IntervalSeconds: 10, BackoffRate: 2.0}
	assert.Zero(t, single.MaxDelay())
}

func TestWorkItemStatus_Terminal(t *testing.T) {
	terminal := []WorkItemStatus{
		WorkItemStatusCancelled,
		WorkItemStatusDisputed,
		WorkItemStatusKept,
		WorkItemStatusFailed,
	}
	for _, status := range terminal {
		assert.True(t, status.Terminal(), string(status))
	}

	active := []WorkItemStatus{
		WorkItemStatusPending,
		WorkItemStatusProcessing,
		WorkItemStatusAPIAttempted,
		WorkItemStatusEmailAttempted,
		WorkItemStatusVoiceAttempted,
		WorkItemStatusAwaitingVerification,
	}
	for _, status := range active {
		assert.False(t, status.Terminal(), string(status))
	}
}

func validDefinition() *WorkflowDefinition {
	return &WorkflowDefinition{
		Name:  "test-flow",
		Kind:  ActionKindCancel,
		Entry: "first",
		Steps: []Step{
			{
				Name:      "first",
				Kind:      StepKindInvoke,
				Executor:  "api",
				Retry:     RetryPolicy{MaxAttempts: 2, IntervalSeconds: 3, BackoffRate: 2.0},
				OnSuccess: "done",
				OnFailure: "second",
			},
			{
				Name:        "second",
				Kind:        StepKindWait,
				WaitSeconds: 60,
				Next:        "done",
			},
			{Name: "done", Kind: StepKindTerminal, Status: WorkItemStatusCancelled},
		},
	}
}

func TestWorkflowDefinition_Validate(t *testing.T) {
	require.NoError(t, validDefinition().Validate())
}

func TestWorkflowDefinition_ValidateDuplicateStep(t *testing.T) {
	definition := validDefinition()
	definition.Steps = append(definition.Steps, Step{Name: "first", Kind: StepKindTerminal, Status: WorkItemStatusFailed})

	err := definition.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step")
}

func TestWorkflowDefinition_ValidateMissingEntry(t *testing.T) {
	definition := validDefinition()
	definition.Entry = "nowhere"

	err := definition.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry step")
}

func TestWorkflowDefinition_ValidateDanglingEdge(t *testing.T) {
	definition := validDefinition()
	definition.Steps[0].OnFailure = "nowhere"

	err := definition.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a step nor a terminal status")
}

func TestWorkflowDefinition_ValidateTerminalStatusEdge(t *testing.T) {
	// Edges may name a terminal status directly instead of a terminal step.
	definition := validDefinition()
	definition.Steps[0].OnFailure = string(WorkItemStatusFailed)
	definition.Steps = definition.Steps[:1]
	definition.Steps[0].OnSuccess = string(WorkItemStatusCancelled)

	require.NoError(t, definition.Validate())
}

func TestWorkflowDefinition_ValidateCycle(t *testing.T) {
	definition := validDefinition()
	definition.Steps[1].Next = "first"

	err := definition.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestWorkflowDefinition_ValidateNonTerminalTerminalStep(t *testing.T) {
	definition := validDefinition()
	definition.Steps[2].Status = WorkItemStatusProcessing

	err := definition.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-terminal status")
}

func TestWorkflowDefinition_EstimatedDuration(t *testing.T) {
	definition := validDefinition()

	// Invoke step worst case: one 3s backoff. Wait step: 60s.
	assert.Equal(t, 63*time.Second, definition.EstimatedDuration())
}

func TestWorkflowDefinition_StepByName(t *testing.T) {
	definition := validDefinition()

	step, ok := definition.StepByName("second")
	require.True(t, ok)
	assert.Equal(t, StepKindWait, step.Kind)

	_, ok = definition.StepByName("nowhere")
	assert.False(t, ok)
}
