// Package events defines event types for work item lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rescindhq/rescind/pkg/models"
)

type EventType string

// Topic carries all work item lifecycle events.
const Topic = "rescind.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkItemDispatchedEvent     EventType = "workitem.dispatched"
	ChannelAttemptStartedEvent  EventType = "attempt.started"
	ChannelAttemptFinishedEvent EventType = "attempt.finished"
	WorkItemCompletedEvent      EventType = "workitem.completed"
	WorkItemFailedEvent         EventType = "workitem.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkItemID string         `json:"work_item_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the common event fields.
func NewBaseEvent(eventType EventType, workItemID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkItemID: workItemID,
	}
}

// WorkItemDispatched signals that a work item was accepted for execution. The
// worker picks it up and drives the workflow.
type WorkItemDispatched struct {
	BaseEvent

	ExecutionID  string                  `json:"execution_id"`
	UserID       string                  `json:"user_id"`
	Action       models.ActionKind       `json:"action"`
	WorkflowName string                  `json:"workflow_name"`
	ItemMetadata models.WorkItemMetadata `json:"item_metadata"`
}

func (e WorkItemDispatched) GetType() EventType {
	return WorkItemDispatchedEvent
}

// ChannelAttemptStarted signals that a channel executor was invoked.
type ChannelAttemptStarted struct {
	BaseEvent

	ExecutionID string               `json:"execution_id"`
	Method      models.ChannelMethod `json:"method"`
	StepName    string               `json:"step_name"`
	Attempt     int                  `json:"attempt"`
}

func (e ChannelAttemptStarted) GetType() EventType {
	return ChannelAttemptStartedEvent
}

// ChannelAttemptFinished signals that a channel executor returned.
type ChannelAttemptFinished struct {
	BaseEvent

	ExecutionID string                `json:"execution_id"`
	Method      models.ChannelMethod  `json:"method"`
	StepName    string                `json:"step_name"`
	Outcome     models.AttemptOutcome `json:"outcome"`
	Diagnostic  string                `json:"diagnostic,omitempty"`
	DurationMs  int64                 `json:"duration_ms"`
}

func (e ChannelAttemptFinished) GetType() EventType {
	return ChannelAttemptFinishedEvent
}

// WorkItemCompleted signals a workflow reached a successful terminal status.
type WorkItemCompleted struct {
	BaseEvent

	ExecutionID string                `json:"execution_id"`
	Status      models.WorkItemStatus `json:"status"`
	Duration    time.Duration         `json:"duration"`
}

func (e WorkItemCompleted) GetType() EventType {
	return WorkItemCompletedEvent
}

// WorkItemFailed signals a workflow exhausted every channel or hit an
// unrecoverable error.
type WorkItemFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e WorkItemFailed) GetType() EventType {
	return WorkItemFailedEvent
}
