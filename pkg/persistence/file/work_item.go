package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// WorkItemRepository stores work items as JSON files, one per item, with the
// attempt audit trail in a sibling file.
type WorkItemRepository struct {
	root string
	mu   sync.RWMutex
}

func NewWorkItemRepository(root string) *WorkItemRepository {
	return &WorkItemRepository{root: filepath.Join(root, "workitems")}
}

func (r *WorkItemRepository) itemPath(id string) string {
	return filepath.Join(r.root, id+".json")
}

func (r *WorkItemRepository) attemptsPath(id string) string {
	return filepath.Join(r.root, id+".attempts.json")
}

func (r *WorkItemRepository) GetByID(_ context.Context, id string) (*models.WorkItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readItem(id)
}

func (r *WorkItemRepository) readItem(id string) (*models.WorkItem, error) {
	raw, err := os.ReadFile(r.itemPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkItemError("GetByID", id, persistence.ErrWorkItemNotFound)
		}

		return nil, persistence.NewWorkItemError("GetByID", id, err)
	}

	var item models.WorkItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, persistence.NewWorkItemError("GetByID", id, err)
	}

	return &item, nil
}

func (r *WorkItemRepository) Save(_ context.Context, item *models.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	item.UpdatedAt = now

	return r.writeItem(item)
}

func (r *WorkItemRepository) writeItem(item *models.WorkItem) error {
	raw, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return persistence.NewWorkItemError("Save", item.ID, err)
	}

	if err := writeJSONFile(r.itemPath(item.ID), raw); err != nil {
		return persistence.NewWorkItemError("Save", item.ID, err)
	}

	return nil
}

func (r *WorkItemRepository) UpdateStatus(_ context.Context, id string, status models.WorkItemStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, err := r.readItem(id)
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

	return r.writeItem(item)
}

func (r *WorkItemRepository) SaveArtifacts(_ context.Context, id string, artifacts map[string]any) error {
	if len(artifacts) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	item, err := r.readItem(id)
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

	return r.writeItem(item)
}

func (r *WorkItemRepository) AppendAttempt(_ context.Context, attempt *models.ChannelAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempts, err := r.readAttempts(attempt.WorkItemID)
	if err != nil {
		return err
	}

	attempts = append(attempts, attempt)

	raw, err := json.MarshalIndent(attempts, "", "  ")
	if err != nil {
		return persistence.NewWorkItemError("AppendAttempt", attempt.WorkItemID, err)
	}

	if err := writeJSONFile(r.attemptsPath(attempt.WorkItemID), raw); err != nil {
		return persistence.NewWorkItemError("AppendAttempt", attempt.WorkItemID, err)
	}

	return nil
}

func (r *WorkItemRepository) Attempts(_ context.Context, workItemID string) ([]*models.ChannelAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readAttempts(workItemID)
}

func (r *WorkItemRepository) readAttempts(workItemID string) ([]*models.ChannelAttempt, error) {
	raw, err := os.ReadFile(r.attemptsPath(workItemID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ChannelAttempt{}, nil
		}

		return nil, persistence.NewWorkItemError("Attempts", workItemID, err)
	}

	var attempts []*models.ChannelAttempt
	if err := json.Unmarshal(raw, &attempts); err != nil {
		return nil, persistence.NewWorkItemError("Attempts", workItemID, err)
	}

	return attempts, nil
}
