package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkItemNotFound indicates a work item was not found by the given identifier.
	ErrWorkItemNotFound = errors.New("work item not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionActive indicates the work item already has an execution in flight.
	ErrExecutionActive = errors.New("execution already active for work item")

	// ErrTerminalStatus indicates a write would move a work item out of a terminal status.
	ErrTerminalStatus = errors.New("work item is in a terminal status")
)

// WorkItemError wraps work-item-related errors with operation context.
type WorkItemError struct {
	Op         string
	WorkItemID string
	Err        error
}

func (e *WorkItemError) Error() string {
	return fmt.Sprintf("%s operation failed for work item %s: %v", e.Op, e.WorkItemID, e.Err)
}

func (e *WorkItemError) Unwrap() error {
	return e.Err
}

func (e *WorkItemError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkItemError creates a new work item error with context.
func NewWorkItemError(op, workItemID string, err error) *WorkItemError {
	return &WorkItemError{Op: op, WorkItemID: workItemID, Err: err}
}

// ExecutionError wraps execution-related errors with operation context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsWorkItemNotFound checks if an error indicates a missing work item.
func IsWorkItemNotFound(err error) bool {
	return errors.Is(err, ErrWorkItemNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsExecutionActive checks if an error indicates an execution is already in flight.
func IsExecutionActive(err error) bool {
	return errors.Is(err, ErrExecutionActive)
}

// IsTerminalStatus checks if an error indicates a rejected terminal-status write.
func IsTerminalStatus(err error) bool {
	return errors.Is(err, ErrTerminalStatus)
}
