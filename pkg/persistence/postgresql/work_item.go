package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// WorkItemRepository handles work-item-related database operations.
type WorkItemRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkItemRepository creates a new work item repository.
func NewWorkItemRepository(db *sql.DB, logger *slog.Logger) *WorkItemRepository {
	return &WorkItemRepository{db: db, logger: logger}
}

func (r *WorkItemRepository) GetByID(ctx context.Context, id string) (*models.WorkItem, error) {
	query := `
		SELECT
			id
		  , user_id
		  , kind
		  , status
		  , metadata
		  , artifacts
		  , created_at
		  , updated_at
		FROM work_items
		WHERE id = $1
	`

	item, err := r.scanWorkItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkItemError("GetByID", id, persistence.ErrWorkItemNotFound)
		}

		return nil, persistence.NewWorkItemError("GetByID", id, err)
	}

	return item, nil
}

func (r *WorkItemRepository) scanWorkItem(row *sql.Row) (*models.WorkItem, error) {
	var (
		item          models.WorkItem
		metadataJSON  []byte
		artifactsJSON []byte
	)

	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Kind,
		&item.Status,
		&metadataJSON,
		&artifactsJSON,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(metadataJSON, &item.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	if err := json.Unmarshal(artifactsJSON, &item.Artifacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
	}

	return &item, nil
}

func (r *WorkItemRepository) Save(ctx context.Context, item *models.WorkItem) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	item.UpdatedAt = now

	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return persistence.NewWorkItemError("Save", item.ID, err)
	}

	artifacts := item.Artifacts
	if artifacts == nil {
		artifacts = map[string]any{}
	}

	artifactsJSON, err := json.Marshal(artifacts)
	if err != nil {
		return persistence.NewWorkItemError("Save", item.ID, err)
	}

	query := `
		INSERT INTO work_items (id, user_id, kind, status, metadata, artifacts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			artifacts = EXCLUDED.artifacts,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.Kind, item.Status,
		metadataJSON, artifactsJSON, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkItemError("Save", item.ID, err)
	}

	return nil
}

func (r *WorkItemRepository) UpdateStatus(ctx context.Context, id string, status models.WorkItemStatus) error {
	item, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if item.Status == status {
		return nil
	}

	if item.Status.Terminal() {
		return persistence.NewWorkItemError("UpdateStatus", id, persistence.ErrTerminalStatus)
	}

	query := `UPDATE work_items SET status = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return persistence.NewWorkItemError("UpdateStatus", id, err)
	}

	return nil
}

func (r *WorkItemRepository) SaveArtifacts(ctx context.Context, id string, artifacts map[string]any) error {
	if len(artifacts) == 0 {
		return nil
	}

	artifactsJSON, err := json.Marshal(artifacts)
	if err != nil {
		return persistence.NewWorkItemError("SaveArtifacts", id, err)
	}

	query := `UPDATE work_items SET artifacts = artifacts || $2::jsonb, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, artifactsJSON)
	if err != nil {
		return persistence.NewWorkItemError("SaveArtifacts", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkItemError("SaveArtifacts", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkItemError("SaveArtifacts", id, persistence.ErrWorkItemNotFound)
	}

	return nil
}

func (r *WorkItemRepository) AppendAttempt(ctx context.Context, attempt *models.ChannelAttempt) error {
	query := `
		INSERT INTO channel_attempts
			(id, work_item_id, method, started_at, duration_ms, outcome, diagnostic, external_reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.WorkItemID, attempt.Method, attempt.StartedAt,
		attempt.DurationMs, attempt.Outcome, attempt.Diagnostic, attempt.ExternalReferenceID,
	)
	if err != nil {
		return persistence.NewWorkItemError("AppendAttempt", attempt.WorkItemID, err)
	}

	return nil
}

func (r *WorkItemRepository) Attempts(ctx context.Context, workItemID string) ([]*models.ChannelAttempt, error) {
	query := `
		SELECT
			id
		  , work_item_id
		  , method
		  , started_at
		  , duration_ms
		  , outcome
		  , diagnostic
		  , external_reference_id
		FROM channel_attempts
		WHERE work_item_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workItemID)
	if err != nil {
		return nil, persistence.NewWorkItemError("Attempts", workItemID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	attempts := make([]*models.ChannelAttempt, 0)

	for rows.Next() {
		var attempt models.ChannelAttempt

		err := rows.Scan(
			&attempt.ID,
			&attempt.WorkItemID,
			&attempt.Method,
			&attempt.StartedAt,
			&attempt.DurationMs,
			&attempt.Outcome,
			&attempt.Diagnostic,
			&attempt.ExternalReferenceID,
		)
		if err != nil {
			return nil, persistence.NewWorkItemError("Attempts", workItemID, err)
		}

		attempts = append(attempts, &attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkItemError("Attempts", workItemID, err)
	}

	return attempts, nil
}
