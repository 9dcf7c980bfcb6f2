package db

import (
	"context"
	"fmt"
)

// IsProcessed reports whether key was already marked. Empty keys and
// storage errors report false; errors are logged.
func (db *DB) IsProcessed(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_posts WHERE post_id = $1)`,
		key,
	).Scan(&exists)
	if err != nil {
		db.logger.Error("failed to check processed post", "key", key, "error", err)
		return false
	}
	return exists
}

// MarkProcessed records key and returns true only for the first successful
// insert. Duplicates, empty keys and storage errors return false.
func (db *DB) MarkProcessed(ctx context.Context, key string) bool {
	if key == "" {
		db.logger.Warn("refusing to mark empty post key")
		return false
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO processed_posts (post_id) VALUES ($1) ON CONFLICT (post_id) DO NOTHING`,
		key,
	)
	if err != nil {
		db.logger.Error("failed to mark processed post", "key", key, "error", err)
		return false
	}
	return tag.RowsAffected() == 1
}

// ProcessedCount returns the number of recorded keys.
func (db *DB) ProcessedCount(ctx context.Context) (int, error) {
	var count int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_posts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed posts: %w", err)
	}
	return count, nil
}

// ClearProcessed deletes every recorded key and returns how many were removed.
func (db *DB) ClearProcessed(ctx context.Context) (int, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM processed_posts`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear processed posts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
