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

// ExecutionRepository stores execution handles as JSON files and enforces the
// single-active-execution claim with an exclusive marker file per work item.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: filepath.Join(root, "executions")}
}

func (r *ExecutionRepository) executionPath(id string) string {
	return filepath.Join(r.root, id+".json")
}

func (r *ExecutionRepository) claimPath(workItemID string) string {
	return filepath.Join(r.root, "active", workItemID+".claim")
}

func (r *ExecutionRepository) Claim(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	claimPath := r.claimPath(execution.WorkItemID)
	if err := os.MkdirAll(filepath.Dir(claimPath), 0o755); err != nil {
		return persistence.NewExecutionError("Claim", execution.ID, err)
	}

	claim, err := os.OpenFile(claimPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return persistence.NewExecutionError("Claim", execution.ID, persistence.ErrExecutionActive)
		}

		return persistence.NewExecutionError("Claim", execution.ID, err)
	}

	if _, err := claim.WriteString(execution.ID); err != nil {
		_ = claim.Close()

		return persistence.NewExecutionError("Claim", execution.ID, err)
	}

	if err := claim.Close(); err != nil {
		return persistence.NewExecutionError("Claim", execution.ID, err)
	}

	return r.writeExecution(execution)
}

func (r *ExecutionRepository) writeExecution(execution *models.Execution) error {
	raw, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if err := writeJSONFile(r.executionPath(execution.ID), raw); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.readExecution(id)
}

func (r *ExecutionRepository) readExecution(id string) (*models.Execution, error) {
	raw, err := os.ReadFile(r.executionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(raw, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) ActiveByWorkItem(_ context.Context, workItemID string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	executionID, err := os.ReadFile(r.claimPath(workItemID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("ActiveByWorkItem", workItemID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ActiveByWorkItem", workItemID, err)
	}

	return r.readExecution(string(executionID))
}

func (r *ExecutionRepository) Finish(_ context.Context, id string, status models.ExecutionStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.readExecution(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	execution.Status = status
	execution.FinishedAt = &now
	execution.Error = errMessage

	if err := r.writeExecution(execution); err != nil {
		return err
	}

	if err := os.Remove(r.claimPath(execution.WorkItemID)); err != nil && !os.IsNotExist(err) {
		return persistence.NewExecutionError("Finish", id, err)
	}

	return nil
}

func (r *ExecutionRepository) ActiveOlderThan(_ context.Context, cutoff time.Time) ([]*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(r.root, "active"))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Execution{}, nil
		}

		return nil, persistence.NewExecutionError("ActiveOlderThan", "", err)
	}

	stale := []*models.Execution{}

	for _, entry := range entries {
		executionID, err := os.ReadFile(filepath.Join(r.root, "active", entry.Name()))
		if err != nil {
			continue
		}

		execution, err := r.readExecution(string(executionID))
		if err != nil {
			continue
		}

		if execution.StartedAt.Before(cutoff) {
			stale = append(stale, execution)
		}
	}

	return stale, nil
}
