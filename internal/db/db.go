// Package db provides run registry and dedup storage on PostgreSQL and SQLite.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, logger: slog.Default()}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS monitor_runs (
	id UUID PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'pending',
	keywords JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ,
	result_json JSONB,
	report_markdown TEXT,
	stats_json JSONB,
	error_message TEXT,
	CONSTRAINT monitor_runs_status_check CHECK (status IN ('pending', 'running', 'completed', 'failed')),
	CONSTRAINT monitor_runs_completed_check CHECK ((status IN ('completed', 'failed')) = (completed_at IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS idx_monitor_runs_created_at ON monitor_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS processed_posts (
	post_id TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_processed_posts_processed_at ON processed_posts (processed_at);
`

// EnsureSchema creates the tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
