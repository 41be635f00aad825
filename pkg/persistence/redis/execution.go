package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// ExecutionRepository stores execution handles and enforces the
// single-active-execution claim with SETNX.
type ExecutionRepository struct {
	client redis.UniversalClient
}

func NewExecutionRepository(client redis.UniversalClient) *ExecutionRepository {
	return &ExecutionRepository{client: client}
}

func executionKey(id string) string {
	return keyPrefix + "execution:" + id
}

func claimKey(workItemID string) string {
	return keyPrefix + "active:" + workItemID
}

func (r *ExecutionRepository) Claim(ctx context.Context, execution *models.Execution) error {
	claimed, err := r.client.SetNX(ctx, claimKey(execution.WorkItemID), execution.ID, 0).Result()
	if err != nil {
		return persistence.NewExecutionError("Claim", execution.ID, err)
	}

	if !claimed {
		return persistence.NewExecutionError("Claim", execution.ID, persistence.ErrExecutionActive)
	}

	return r.write(ctx, execution)
}

func (r *ExecutionRepository) write(ctx context.Context, execution *models.Execution) error {
	raw, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if err := r.client.Set(ctx, executionKey(execution.ID), raw, 0).Err(); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	raw, err := r.client.Get(ctx, executionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal([]byte(raw), &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) ActiveByWorkItem(ctx context.Context, workItemID string) (*models.Execution, error) {
	executionID, err := r.client.Get(ctx, claimKey(workItemID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewExecutionError("ActiveByWorkItem", workItemID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ActiveByWorkItem", workItemID, err)
	}

	return r.GetByID(ctx, executionID)
}

func (r *ExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, errMessage string) error {
	execution, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	execution.Status = status
	execution.FinishedAt = &now
	execution.Error = errMessage

	if err := r.write(ctx, execution); err != nil {
		return err
	}

	if err := r.client.Del(ctx, claimKey(execution.WorkItemID)).Err(); err != nil {
		return persistence.NewExecutionError("Finish", id, err)
	}

	return nil
}

func (r *ExecutionRepository) ActiveOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	stale := []*models.Execution{}

	iter := r.client.Scan(ctx, 0, claimKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		executionID, err := r.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}

		execution, err := r.GetByID(ctx, executionID)
		if err != nil {
			continue
		}

		if execution.StartedAt.Before(cutoff) {
			stale = append(stale, execution)
		}
	}

	if err := iter.Err(); err != nil {
		return nil, persistence.NewExecutionError("ActiveOlderThan", "", err)
	}

	return stale, nil
}
