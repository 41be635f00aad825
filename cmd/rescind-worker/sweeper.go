package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// staleAfter is how long an execution may stay claimed before the sweep
// considers its worker dead. The longest built-in flow waits five minutes, so
// the horizon leaves room for the wait window plus every retry backoff.
const staleAfter = 30 * time.Minute

// StaleSweeper releases execution claims whose worker died mid-flight. Without
// it a crashed worker would pin its work items forever, since the dispatcher
// refuses to start a second execution while one is claimed.
type StaleSweeper struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	cron        *cron.Cron
}

func NewStaleSweeper(p persistence.Persistence, logger *slog.Logger) *StaleSweeper {
	return &StaleSweeper{
		persistence: p,
		logger:      logger.With("module", "stale_sweeper"),
		cron:        cron.New(),
	}
}

func (s *StaleSweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

func (s *StaleSweeper) Stop() {
	s.cron.Stop()
}

func (s *StaleSweeper) sweep() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-staleAfter)

	stale, err := s.persistence.Executions().ActiveOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list stale executions", "error", err)

		return
	}

	for _, execution := range stale {
		s.logger.WarnContext(ctx, "Releasing stale execution",
			"execution_id", execution.ID,
			"work_item_id", execution.WorkItemID,
			"started_at", execution.StartedAt,
		)

		err := s.persistence.Executions().Finish(ctx, execution.ID, models.ExecutionStatusFailed, "execution abandoned by worker")
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to release stale execution",
				"execution_id", execution.ID, "error", err)
		}
	}
}
