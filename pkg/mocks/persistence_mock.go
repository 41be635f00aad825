package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
)

// MockWorkItemRepository is a mock implementation of persistence.WorkItemRepository interface.
type MockWorkItemRepository struct {
	mock.Mock
}

func (m *MockWorkItemRepository) GetByID(ctx context.Context, id string) (*models.WorkItem, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkItem), args.Error(1)
}

func (m *MockWorkItemRepository) Save(ctx context.Context, item *models.WorkItem) error {
	args := m.Called(ctx, item)

	return args.Error(0)
}

func (m *MockWorkItemRepository) UpdateStatus(ctx context.Context, id string, status models.WorkItemStatus) error {
	args := m.Called(ctx, id, status)

	return args.Error(0)
}

func (m *MockWorkItemRepository) SaveArtifacts(ctx context.Context, id string, artifacts map[string]any) error {
	args := m.Called(ctx, id, artifacts)

	return args.Error(0)
}

func (m *MockWorkItemRepository) AppendAttempt(ctx context.Context, attempt *models.ChannelAttempt) error {
	args := m.Called(ctx, attempt)

	return args.Error(0)
}

func (m *MockWorkItemRepository) Attempts(ctx context.Context, workItemID string) ([]*models.ChannelAttempt, error) {
	args := m.Called(ctx, workItemID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ChannelAttempt), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Claim(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ActiveByWorkItem(ctx context.Context, workItemID string) (*models.Execution, error) {
	args := m.Called(ctx, workItemID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, errMessage string) error {
	args := m.Called(ctx, id, status, errMessage)

	return args.Error(0)
}

func (m *MockExecutionRepository) ActiveOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	args := m.Called(ctx, cutoff)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	WorkItemRepo  *MockWorkItemRepository
	ExecutionRepo *MockExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		WorkItemRepo:  &MockWorkItemRepository{},
		ExecutionRepo: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) WorkItems() persistence.WorkItemRepository {
	return m.WorkItemRepo
}

func (m *MockPersistence) Executions() persistence.ExecutionRepository {
	return m.ExecutionRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
