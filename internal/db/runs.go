package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lzrong0203/memo-run/internal/types"
)

const runColumns = `id, status, keywords, created_at, completed_at, result_json, report_markdown, stats_json, error_message`

// CreateRun inserts a pending run record.
func (db *DB) CreateRun(ctx context.Context, runID uuid.UUID, keywords []string) error {
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO monitor_runs (id, status, keywords) VALUES ($1, 'pending', $2)`,
		runID, keywordsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun applies a status transition. It returns false when the run does
// not exist or has already reached a terminal status.
func (db *DB) UpdateRun(ctx context.Context, runID uuid.UUID, update RunUpdate) (bool, error) {
	if !validStatus(update.Status) {
		return false, fmt.Errorf("invalid run status %q", update.Status)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE monitor_runs SET
			status = $2::text,
			result_json = COALESCE($3, result_json),
			report_markdown = COALESCE($4, report_markdown),
			stats_json = COALESCE($5, stats_json),
			error_message = COALESCE($6, error_message),
			completed_at = CASE WHEN $2::text IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		runID, string(update.Status), nullableJSON(update.Result), update.ReportMarkdown,
		nullableJSON(update.Stats), update.ErrorMessage,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetRun retrieves a run by ID. It returns nil, nil when the run does not exist.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM monitor_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns one page of runs, newest first, plus the total count.
func (db *DB) ListRuns(ctx context.Context, page, limit int) (*RunPage, error) {
	page, limit = NormalizePage(page, limit)

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM monitor_runs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM monitor_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []types.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
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

func scanRun(row pgx.Row) (*types.Run, error) {
	var (
		run      types.Run
		status   string
		keywords []byte
		result   []byte
		stats    []byte
	)
	err := row.Scan(&run.ID, &status, &keywords, &run.CreatedAt, &run.CompletedAt,
		&result, &run.ReportMarkdown, &stats, &run.ErrorMessage)
	if err != nil {
		return nil, err
	}
	run.Status = types.RunStatus(status)
	run.Keywords = decodeKeywords(keywords)
	if len(result) > 0 {
		run.Result = json.RawMessage(result)
	}
	if len(stats) > 0 {
		run.Stats = json.RawMessage(stats)
	}
	return &run, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
