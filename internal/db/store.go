package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lzrong0203/memo-run/internal/config"
	"github.com/lzrong0203/memo-run/internal/types"
)

// Store is the run registry plus dedup store, implemented by *DB and
// *SQLiteStore.
type Store interface {
	CreateRun(ctx context.Context, runID uuid.UUID, keywords []string) error
	UpdateRun(ctx context.Context, runID uuid.UUID, update RunUpdate) (bool, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error)
	ListRuns(ctx context.Context, page, limit int) (*RunPage, error)

	IsProcessed(ctx context.Context, key string) bool
	MarkProcessed(ctx context.Context, key string) bool
	ProcessedCount(ctx context.Context) (int, error)
	ClearProcessed(ctx context.Context) (int, error)

	Close()
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open connects the backend selected by cfg and ensures its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		database, err := Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		database.logger = logger
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	case config.DriverSQLite, "":
		return OpenSQLite(ctx, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
