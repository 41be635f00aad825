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

// WorkItemRepository stores work items as JSON strings and the attempt audit
// trail as a Redis list, preserving attempt order.
type WorkItemRepository struct {
	client redis.UniversalClient
}

func NewWorkItemRepository(client redis.UniversalClient) *WorkItemRepository {
	return &WorkItemRepository{client: client}
}

func itemKey(id string) string {
	return keyPrefix + "workitem:" + id
}

func attemptsKey(id string) string {
	return keyPrefix + "attempts:" + id
}

func (r *WorkItemRepository) GetByID(ctx context.Context, id string) (*models.WorkItem, error) {
	raw, err := r.client.Get(ctx, itemKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewWorkItemError("GetByID", id, persistence.ErrWorkItemNotFound)
		}

		return nil, persistence.NewWorkItemError("GetByID", id, err)
	}

	var item models.WorkItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, persistence.NewWorkItemError("GetByID", id, err)
	}

	return &item, nil
}

func (r *WorkItemRepository) Save(ctx context.Context, item *models.WorkItem) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	item.UpdatedAt = now

	return r.write(ctx, item)
}

func (r *WorkItemRepository) write(ctx context.Context, item *models.WorkItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return persistence.NewWorkItemError("Save", item.ID, err)
	}

	if err := r.client.Set(ctx, itemKey(item.ID), raw, 0).Err(); err != nil {
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

	item.Status = status
	item.UpdatedAt = time.Now().UTC()

	return r.write(ctx, item)
}

func (r *WorkItemRepository) SaveArtifacts(ctx context.Context, id string, artifacts map[string]any) error {
	if len(artifacts) == 0 {
		return nil
	}

	item, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if item.Artifacts == nil {
		item.Artifacts = make(map[string]any, len(artifacts))
	}

	for key, value := range artifacts {
		item.Artifacts[key] = value
	}

	item.UpdatedAt = time.Now().UTC()

	return r.write(ctx, item)
}

func (r *WorkItemRepository) AppendAttempt(ctx context.Context, attempt *models.ChannelAttempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return persistence.NewWorkItemError("AppendAttempt", attempt.WorkItemID, err)
	}

	if err := r.client.RPush(ctx, attemptsKey(attempt.WorkItemID), raw).Err(); err != nil {
		return persistence.NewWorkItemError("AppendAttempt", attempt.WorkItemID, err)
	}

	return nil
}

func (r *WorkItemRepository) Attempts(ctx context.Context, workItemID string) ([]*models.ChannelAttempt, error) {
	raws, err := r.client.LRange(ctx, attemptsKey(workItemID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewWorkItemError("Attempts", workItemID, err)
	}

	attempts := make([]*models.ChannelAttempt, 0, len(raws))

	for _, raw := range raws {
		var attempt models.ChannelAttempt
		if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
			return nil, persistence.NewWorkItemError("Attempts", workItemID, err)
		}

		attempts = append(attempts, &attempt)
	}

	return attempts, nil
}
