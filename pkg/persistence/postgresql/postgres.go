// Package postgresql provides PostgreSQL persistence for work items and executions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/rescindhq/rescind/pkg/persistence"
	"github.com/rescindhq/rescind/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workItemRepo  *WorkItemRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workItemRepo:  NewWorkItemRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
	}, nil
}

func (p *Persistence) WorkItems() persistence.WorkItemRepository {
	return p.workItemRepo
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS work_items (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				status TEXT NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}',
				artifacts JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS channel_attempts (
				id TEXT PRIMARY KEY,
				work_item_id TEXT NOT NULL REFERENCES work_items(id),
				method TEXT NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				outcome TEXT NOT NULL,
				diagnostic TEXT NOT NULL DEFAULT '',
				external_reference_id TEXT NOT NULL DEFAULT '',
				seq BIGSERIAL
			);

			CREATE INDEX IF NOT EXISTS idx_channel_attempts_work_item
				ON channel_attempts(work_item_id, seq);

			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				work_item_id TEXT NOT NULL,
				workflow_name TEXT NOT NULL,
				status TEXT NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				estimated_completion_time TIMESTAMP WITH TIME ZONE NOT NULL,
				error TEXT NOT NULL DEFAULT ''
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_one_active
				ON executions(work_item_id) WHERE status = 'STARTED';
		`,
	}
}
