package models

import "time"

// ChannelMethod identifies one way of attempting a cancellation or dispute.
type ChannelMethod string

const (
	ChannelMethodAPI   ChannelMethod = "api"
	ChannelMethodEmail ChannelMethod = "email"
	ChannelMethodVoice ChannelMethod = "voice"
)

// AttemptOutcome is the recorded result of one executor invocation.
type AttemptOutcome string

const (
	AttemptOutcomeSuccess AttemptOutcome = "success"
	AttemptOutcomeFailure AttemptOutcome = "failure"
)

// ChannelAttempt records one executor invocation. Attempts are immutable once
// the executor returns; the ordered list per work item forms its audit trail.
type ChannelAttempt struct {
	ID                  string         `json:"id"`
	WorkItemID          string         `json:"work_item_id"`
	Method              ChannelMethod  `json:"method"`
	StartedAt           time.Time      `json:"started_at"`
	DurationMs          int64          `json:"duration_ms"`
	Outcome             AttemptOutcome `json:"outcome"`
	Diagnostic          string         `json:"diagnostic,omitempty"`
	ExternalReferenceID string         `json:"external_reference_id,omitempty"`
}

// ChannelResult is the raw result an executor returns. Expected business
// failures come back as Success=false with a diagnostic, never as an error.
type ChannelResult struct {
	Success             bool           `json:"success"`
	Method              ChannelMethod  `json:"method"`
	Merchant            string         `json:"merchant"`
	WorkItemID          string         `json:"work_item_id"`
	ExternalReferenceID string         `json:"external_reference_id,omitempty"`
	Diagnostic          string         `json:"diagnostic,omitempty"`
	Artifacts           map[string]any `json:"artifacts,omitempty"`
}

// Outcome is the normalized contract the orchestrator branches on.
type Outcome struct {
	Success bool          `json:"success"`
	Method  ChannelMethod `json:"method"`
	Error   string        `json:"error,omitempty"`
}
