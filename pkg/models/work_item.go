// Package models defines the core domain models for cancellation and dispute workflows.
package models

import "time"

// ActionKind is the action requested for a detection item.
type ActionKind string

const (
	ActionKindCancel  ActionKind = "cancel"
	ActionKindDispute ActionKind = "dispute"
	ActionKindKeep    ActionKind = "keep"
)

// WorkItemStatus represents the lifecycle state of a work item.
type WorkItemStatus string

const (
	WorkItemStatusPending              WorkItemStatus = "PENDING"
	WorkItemStatusProcessing           WorkItemStatus = "PROCESSING"
	WorkItemStatusAPIAttempted         WorkItemStatus = "API_ATTEMPTED"
	WorkItemStatusEmailAttempted       WorkItemStatus = "EMAIL_ATTEMPTED"
	WorkItemStatusVoiceAttempted       WorkItemStatus = "VOICE_ATTEMPTED"
	WorkItemStatusAwaitingVerification WorkItemStatus = "AWAITING_VERIFICATION"
	WorkItemStatusCancelled            WorkItemStatus = "CANCELLED"
	WorkItemStatusDisputed             WorkItemStatus = "DISPUTED"
	WorkItemStatusKept                 WorkItemStatus = "KEPT"
	WorkItemStatusFailed               WorkItemStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from the status.
func (s WorkItemStatus) Terminal() bool {
	switch s {
	case WorkItemStatusCancelled, WorkItemStatusDisputed, WorkItemStatusKept, WorkItemStatusFailed:
		return true
	default:
		return false
	}
}

// WorkItemMetadata carries the transaction details the channel executors need.
type WorkItemMetadata struct {
	Merchant          string  `json:"merchant"                      validate:"required"`
	Amount            float64 `json:"amount"`
	Date              string  `json:"date"`
	AccountLast4      string  `json:"account_last4"`
	DisputeReason     string  `json:"dispute_reason,omitempty"`
	CustomPhoneNumber string  `json:"custom_phone_number,omitempty"`
}

// WorkItem is the subscription or dispute record being driven through a workflow.
type WorkItem struct {
	ID        string           `json:"id"         validate:"required"`
	UserID    string           `json:"user_id"    validate:"required"`
	Kind      ActionKind       `json:"kind"       validate:"required"`
	Status    WorkItemStatus   `json:"status"`
	Metadata  WorkItemMetadata `json:"metadata"`
	Artifacts map[string]any   `json:"artifacts,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
