package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// uniqueViolation is the PostgreSQL error code raised by the partial unique
// index enforcing one active execution per work item.
const uniqueViolation = "23505"

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Claim(ctx context.Context, execution *models.Execution) error {
	query := `
		INSERT INTO executions
			(id, work_item_id, workflow_name, status, started_at, estimated_completion_time, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkItemID, execution.WorkflowName, execution.Status,
		execution.StartedAt, execution.EstimatedCompletionTime, execution.Error,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return persistence.NewExecutionError("Claim", execution.ID, persistence.ErrExecutionActive)
		}

		return persistence.NewExecutionError("Claim", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT
			id
		  , work_item_id
		  , workflow_name
		  , status
		  , started_at
		  , finished_at
		  , estimated_completion_time
		  , error
		FROM executions
		WHERE id = $1
	`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) scanExecution(row *sql.Row) (*models.Execution, error) {
	var (
		execution  models.Execution
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkItemID,
		&execution.WorkflowName,
		&execution.Status,
		&execution.StartedAt,
		&finishedAt,
		&execution.EstimatedCompletionTime,
		&execution.Error,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		execution.FinishedAt = &finishedAt.Time
	}

	return &execution, nil
}

func (r *ExecutionRepository) ActiveByWorkItem(ctx context.Context, workItemID string) (*models.Execution, error) {
	query := `
		SELECT
			id
		  , work_item_id
		  , workflow_name
		  , status
		  , started_at
		  , finished_at
		  , estimated_completion_time
		  , error
		FROM executions
		WHERE work_item_id = $1 AND status = 'STARTED'
	`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, workItemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ActiveByWorkItem", workItemID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ActiveByWorkItem", workItemID, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, errMessage string) error {
	query := `UPDATE executions SET status = $2, finished_at = NOW(), error = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, errMessage)
	if err != nil {
		return persistence.NewExecutionError("Finish", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Finish", id, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Finish", id, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) ActiveOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	query := `
		SELECT
			id
		  , work_item_id
		  , workflow_name
		  , status
		  , started_at
		  , finished_at
		  , estimated_completion_time
		  , error
		FROM executions
		WHERE status = 'STARTED' AND started_at < $1
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, persistence.NewExecutionError("ActiveOlderThan", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		var (
			execution  models.Execution
			finishedAt sql.NullTime
		)

		err := rows.Scan(
			&execution.ID,
			&execution.WorkItemID,
			&execution.WorkflowName,
			&execution.Status,
			&execution.StartedAt,
			&finishedAt,
			&execution.EstimatedCompletionTime,
			&execution.Error,
		)
		if err != nil {
			return nil, persistence.NewExecutionError("ActiveOlderThan", "", err)
		}

		if finishedAt.Valid {
			execution.FinishedAt = &finishedAt.Time
		}

		executions = append(executions, &execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("ActiveOlderThan", "", err)
	}

	return executions, nil
}
