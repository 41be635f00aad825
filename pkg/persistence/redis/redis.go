// Package redis provides Redis-backed persistence for work items and
// executions. Per-item writes are last-writer-wins; the execution claim uses
// SETNX so concurrent dispatchers cannot start duplicate executions.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
	"github.com/rescindhq/rescind/pkg/persistence"
)

const keyPrefix = "rescind:"

// Persistence implements the persistence.Persistence interface on Redis.
type Persistence struct {
	client        redis.UniversalClient
	logger        *slog.Logger
	workItemRepo  *WorkItemRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:        client,
		logger:        logger.With("module", "redis_persistence"),
		workItemRepo:  NewWorkItemRepository(client),
		executionRepo: NewExecutionRepository(client),
	}, nil
}

func (p *Persistence) WorkItems() persistence.WorkItemRepository {
	return p.workItemRepo
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}
