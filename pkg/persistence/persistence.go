// Package persistence provides the storage abstraction for work items,
// channel attempts, and workflow executions.
package persistence

import (
	"context"
	"time"

	"github.com/rescindhq/rescind/pkg/models"
)

type Persistence interface {
	WorkItems() WorkItemRepository
	Executions() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkItemRepository stores work items and their attempt audit trail.
type WorkItemRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkItem, error)
	Save(ctx context.Context, item *models.WorkItem) error

	// UpdateStatus is idempotent: repeating the current status is a no-op.
	// Any other write after a terminal status fails with ErrTerminalStatus.
	UpdateStatus(ctx context.Context, id string, status models.WorkItemStatus) error

	// SaveArtifacts merges supplementary references (transcripts, case IDs)
	// into the work item.
	SaveArtifacts(ctx context.Context, id string, artifacts map[string]any) error

	AppendAttempt(ctx context.Context, attempt *models.ChannelAttempt) error
	Attempts(ctx context.Context, workItemID string) ([]*models.ChannelAttempt, error)
}

// ExecutionRepository enforces the at-most-one-active-execution-per-work-item
// invariant and stores execution handles.
type ExecutionRepository interface {
	// Claim registers a new active execution. It fails with
	// ErrExecutionActive when the work item already has one in flight.
	Claim(ctx context.Context, execution *models.Execution) error

	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ActiveByWorkItem(ctx context.Context, workItemID string) (*models.Execution, error)

	// Finish records the terminal execution status and releases the claim.
	Finish(ctx context.Context, id string, status models.ExecutionStatus, errMessage string) error

	// ActiveOlderThan lists executions still claimed past the cutoff, for the
	// stale-execution sweep.
	ActiveOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Execution, error)
}
