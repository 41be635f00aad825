// Package recorder persists intermediate and terminal work item state on
// behalf of the orchestrator, retrying transient persistence failures.
package recorder

import (
	"context"
	"log/slog"

	"github.com/rescindhq/rescind/pkg/clock"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// DefaultRetry bounds retries of persistence writes.
var DefaultRetry = models.RetryPolicy{MaxAttempts: 3, IntervalSeconds: 2, BackoffRate: 2.0}

// Recorder wraps the work item repository with the status-write retry policy.
// Status writes are idempotent and terminal-guarded by the repository;
// artifact writes are best-effort and never escalate.
type Recorder struct {
	items   persistence.WorkItemRepository
	retry   models.RetryPolicy
	sleeper clock.Sleeper
	logger  *slog.Logger
}

func NewRecorder(items persistence.WorkItemRepository, logger *slog.Logger) *Recorder {
	return &Recorder{
		items:   items,
		retry:   DefaultRetry,
		sleeper: clock.Real{},
		logger:  logger.With("module", "recorder"),
	}
}

// WithSleeper replaces the backoff sleeper. Tests use a fake.
func (r *Recorder) WithSleeper(sleeper clock.Sleeper) *Recorder {
	r.sleeper = sleeper

	return r
}

// WithRetry replaces the retry policy.
func (r *Recorder) WithRetry(retry models.RetryPolicy) *Recorder {
	r.retry = retry

	return r
}

// UpdateStatus writes a status transition, retrying transient failures. The
// terminal guard and the not-found case are deterministic, so they surface
// immediately.
func (r *Recorder) UpdateStatus(ctx context.Context, workItemID string, status models.WorkItemStatus) error {
	return r.withRetry(ctx, func() error {
		return r.items.UpdateStatus(ctx, workItemID, status)
	})
}

// AppendAttempt records one executor invocation in the audit trail.
func (r *Recorder) AppendAttempt(ctx context.Context, attempt *models.ChannelAttempt) error {
	return r.withRetry(ctx, func() error {
		return r.items.AppendAttempt(ctx, attempt)
	})
}

// SaveArtifacts merges supplementary references into the work item. Failures
// are logged and swallowed: a lost transcript never fails a succeeded channel.
func (r *Recorder) SaveArtifacts(ctx context.Context, workItemID string, artifacts map[string]any) {
	err := r.withRetry(ctx, func() error {
		return r.items.SaveArtifacts(ctx, workItemID, artifacts)
	})
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to save artifacts, continuing",
			"work_item_id", workItemID, "error", err)
	}
}

func (r *Recorder) withRetry(ctx context.Context, write func() error) error {
	var lastErr error

	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleeper.Sleep(ctx, r.retry.Delay(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = write()
		if lastErr == nil {
			return nil
		}

		if persistence.IsTerminalStatus(lastErr) || persistence.IsWorkItemNotFound(lastErr) {
			return lastErr
		}

		r.logger.WarnContext(ctx, "Persistence write failed, retrying",
			"attempt", attempt+1, "error", lastErr)
	}

	return lastErr
}
