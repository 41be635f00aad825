// Package flows holds the built-in workflow definitions and the loader for
// definition files. Definitions are configuration artifacts consumed by the
// orchestrator at execution-start time, not code.
package flows

import "github.com/rescindhq/rescind/pkg/models"

// CancelFlow tries the merchant API first, then email, then a voice call.
// The first success wins; exhausting every channel fails the item.
func CancelFlow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:  "cancel-flow",
		Kind:  models.ActionKindCancel,
		Entry: "api",
		Steps: []models.Step{
			{
				Name:      "api",
				Kind:      models.StepKindInvoke,
				Executor:  "api",
				Retry:     models.RetryPolicy{MaxAttempts: 2, IntervalSeconds: 3, BackoffRate: 2.0},
				Record:    models.WorkItemStatusAPIAttempted,
				OnSuccess: "cancelled",
				OnFailure: "email",
			},
			{
				Name:      "email",
				Kind:      models.StepKindInvoke,
				Executor:  "email",
				Retry:     models.RetryPolicy{MaxAttempts: 2, IntervalSeconds: 5, BackoffRate: 1.5},
				Record:    models.WorkItemStatusEmailAttempted,
				OnSuccess: "cancelled",
				OnFailure: "voice",
			},
			{
				Name:      "voice",
				Kind:      models.StepKindInvoke,
				Executor:  "voice",
				Retry:     models.RetryPolicy{MaxAttempts: 2, IntervalSeconds: 10, BackoffRate: 1.5},
				Record:    models.WorkItemStatusVoiceAttempted,
				OnSuccess: "cancelled",
				OnFailure: "failed",
			},
			{Name: "cancelled", Kind: models.StepKindTerminal, Status: models.WorkItemStatusCancelled},
			{Name: "failed", Kind: models.StepKindTerminal, Status: models.WorkItemStatusFailed},
		},
	}
}

// DisputeFlow places a dispute call, waits out the call window, then verifies
// the call's final outcome with the provider.
func DisputeFlow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:  "dispute-flow",
		Kind:  models.ActionKindDispute,
		Entry: "voice",
		Steps: []models.Step{
			{
				Name:      "voice",
				Kind:      models.StepKindInvoke,
				Executor:  "voice",
				Retry:     models.RetryPolicy{MaxAttempts: 2, IntervalSeconds: 10, BackoffRate: 1.5},
				Record:    models.WorkItemStatusVoiceAttempted,
				OnSuccess: "await-verification",
				OnFailure: "failed",
			},
			{
				Name:        "await-verification",
				Kind:        models.StepKindWait,
				WaitSeconds: 300,
				Record:      models.WorkItemStatusAwaitingVerification,
				Next:        "verify",
			},
			{
				Name:      "verify",
				Kind:      models.StepKindInvoke,
				Executor:  "voice-verify",
				Retry:     models.RetryPolicy{MaxAttempts: 1},
				OnSuccess: "disputed",
				OnFailure: "failed",
			},
			{Name: "disputed", Kind: models.StepKindTerminal, Status: models.WorkItemStatusDisputed},
			{Name: "failed", Kind: models.StepKindTerminal, Status: models.WorkItemStatusFailed},
		},
	}
}

// Builtin returns the definitions shipped with the service, keyed by action.
func Builtin() map[models.ActionKind]*models.WorkflowDefinition {
	return map[models.ActionKind]*models.WorkflowDefinition{
		models.ActionKindCancel:  CancelFlow(),
		models.ActionKindDispute: DisputeFlow(),
	}
}
