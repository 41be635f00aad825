package models

import "time"

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusStarted   ExecutionStatus = "STARTED"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// Execution is the handle for one workflow run over a work item. At most one
// execution per work item may be active at a time.
type Execution struct {
	ID                      string          `json:"id"`
	WorkItemID              string          `json:"work_item_id"`
	WorkflowName            string          `json:"workflow_name"`
	Status                  ExecutionStatus `json:"status"`
	StartedAt               time.Time       `json:"started_at"`
	FinishedAt              *time.Time      `json:"finished_at,omitempty"`
	EstimatedCompletionTime time.Time       `json:"estimated_completion_time"`
	Error                   string          `json:"error,omitempty"`
}

// Active reports whether the execution is still in flight.
func (e *Execution) Active() bool {
	return e.Status == ExecutionStatusStarted
}
