package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lzrong0203/memo-run/internal/types"
)

// sqliteTimeLayout is fixed-width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'pending',
	keywords TEXT NOT NULL,
	created_at TEXT NOT NULL,
	completed_at TEXT,
	result_json TEXT,
	report_markdown TEXT,
	stats_json TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);

CREATE TABLE IF NOT EXISTS processed_posts (
	post_id TEXT PRIMARY KEY,
	processed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_posts (processed_at);
`

var sqliteRunColumns = []string{
	"id", "status", "keywords", "created_at", "completed_at",
	"result_json", "report_markdown", "stats_json", "error_message",
}

var terminalStatuses = []string{string(types.RunStatusCompleted), string(types.RunStatusFailed)}

// SQLiteStore keeps runs and processed posts in a single SQLite file. Each
// operation opens and closes its own connection, so independent processes
// (the server and the batch tools) can share the file.
type SQLiteStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite prepares the database file and schema at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	s := &SQLiteStore{path: path, logger: logger, now: time.Now}

	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close is a no-op; connections are per operation.
func (s *SQLiteStore) Close() {}

func (s *SQLiteStore) open() (*sql.DB, error) {
	dsn := "file:" + s.path + "?_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", s.path, err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(sqliteTimeLayout)
}

// CreateRun inserts a pending run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, runID uuid.UUID, keywords []string) error {
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	query, args, err := sq.Insert("runs").
		Columns("id", "status", "keywords", "created_at").
		Values(runID.String(), string(types.RunStatusPending), string(keywordsJSON), s.timestamp()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	conn, err := s.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun applies a status transition. It returns false when the run does
// not exist or has already reached a terminal status.
func (s *SQLiteStore) UpdateRun(ctx context.Context, runID uuid.UUID, update RunUpdate) (bool, error) {
	if !validStatus(update.Status) {
		return false, fmt.Errorf("invalid run status %q", update.Status)
	}

	builder := sq.Update("runs").
		Set("status", string(update.Status)).
		Where(sq.Eq{"id": runID.String()}).
		Where(sq.NotEq{"status": terminalStatuses})
	if len(update.Result) > 0 {
		builder = builder.Set("result_json", string(update.Result))
	}
	if update.ReportMarkdown != nil {
		builder = builder.Set("report_markdown", *update.ReportMarkdown)
	}
	if len(update.Stats) > 0 {
		builder = builder.Set("stats_json", string(update.Stats))
	}
	if update.ErrorMessage != nil {
		builder = builder.Set("error_message", *update.ErrorMessage)
	}
	if update.Status.IsTerminal() {
		builder = builder.Set("completed_at", s.timestamp())
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update: %w", err)
	}

	conn, err := s.open()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update run: %w", err)
	}
	return n > 0, nil
}

// GetRun retrieves a run by ID. It returns nil, nil when the run does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	query, args, err := sq.Select(sqliteRunColumns...).
		From("runs").
		Where(sq.Eq{"id": runID.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	run, err := scanSQLiteRun(conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns one page of runs, newest first, plus the total count.
func (s *SQLiteStore) ListRuns(ctx context.Context, page, limit int) (*RunPage, error) {
	page, limit = NormalizePage(page, limit)

	countQuery, _, err := sq.Select("COUNT(*)").From("runs").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build count: %w", err)
	}
	listQuery, listArgs, err := sq.Select(sqliteRunColumns...).
		From("runs").
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var total int
	if err := conn.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := conn.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []types.Run{}
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return &RunPage{Runs: runs, Total: total, Page: page, Limit: limit}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (*types.Run, error) {
	var (
		id, status, keywords, createdAt                 string
		completedAt, result, report, stats, errMessage sql.NullString
	)
	if err := row.Scan(&id, &status, &keywords, &createdAt, &completedAt, &result, &report, &stats, &errMessage); err != nil {
		return nil, err
	}

	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}

	run := &types.Run{
		ID:       runID,
		Status:   types.RunStatus(status),
		Keywords: decodeKeywords([]byte(keywords)),
	}
	if t, err := time.Parse(sqliteTimeLayout, createdAt); err == nil {
		run.CreatedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(sqliteTimeLayout, completedAt.String); err == nil {
			run.CompletedAt = &t
		}
	}
	if result.Valid && result.String != "" {
		run.Result = json.RawMessage(result.String)
	}
	if report.Valid {
		v := report.String
		run.ReportMarkdown = &v
	}
	if stats.Valid && stats.String != "" {
		run.Stats = json.RawMessage(stats.String)
	}
	if errMessage.Valid {
		v := errMessage.String
		run.ErrorMessage = &v
	}
	return run, nil
}

// IsProcessed reports whether key was already marked. Empty keys and
// storage errors report false; errors are logged.
func (s *SQLiteStore) IsProcessed(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	query, args, err := sq.Select("1").From("processed_posts").Where(sq.Eq{"post_id": key}).Limit(1).ToSql()
	if err != nil {
		s.logger.Error("failed to build processed lookup", "error", err)
		return false
	}

	conn, err := s.open()
	if err != nil {
		s.logger.Error("failed to check processed post", "key", key, "error", err)
		return false
	}
	defer conn.Close()

	var one int
	err = conn.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false
	case err != nil:
		s.logger.Error("failed to check processed post", "key", key, "error", err)
		return false
	}
	return true
}

// MarkProcessed records key and returns true only for the first successful
// insert. Duplicates, empty keys and storage errors return false.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, key string) bool {
	if key == "" {
		s.logger.Warn("refusing to mark empty post key")
		return false
	}

	query, args, err := sq.Insert("processed_posts").
		Options("OR IGNORE").
		Columns("post_id", "processed_at").
		Values(key, s.timestamp()).
		ToSql()
	if err != nil {
		s.logger.Error("failed to build processed insert", "error", err)
		return false
	}

	conn, err := s.open()
	if err != nil {
		s.logger.Error("failed to mark processed post", "key", key, "error", err)
		return false
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to mark processed post", "key", key, "error", err)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.logger.Error("failed to mark processed post", "key", key, "error", err)
		return false
	}
	return n == 1
}

// ProcessedCount returns the number of recorded keys.
func (s *SQLiteStore) ProcessedCount(ctx context.Context) (int, error) {
	query, _, err := sq.Select("COUNT(*)").From("processed_posts").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count: %w", err)
	}

	conn, err := s.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int
	if err := conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed posts: %w", err)
	}
	return count, nil
}

// ClearProcessed deletes every recorded key and returns how many were removed.
func (s *SQLiteStore) ClearProcessed(ctx context.Context) (int, error) {
	query, args, err := sq.Delete("processed_posts").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}

	conn, err := s.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear processed posts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear processed posts: %w", err)
	}
	return int(n), nil
}
