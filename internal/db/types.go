package db

import (
	"encoding/json"

	"github.com/lzrong0203/memo-run/internal/types"
)

// Pagination bounds for ListRuns.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// RunUpdate carries a status transition and the artifacts written with it.
// Nil fields leave the stored value unchanged. completed_at is stamped by
// the store when Status is terminal.
type RunUpdate struct {
	Status         types.RunStatus
	Result         json.RawMessage
	ReportMarkdown *string
	Stats          json.RawMessage
	ErrorMessage   *string
}

// RunPage is one page of the run history, newest first.
type RunPage struct {
	Runs  []types.Run
	Total int
	Page  int
	Limit int
}

// NormalizePage clamps page to >= 1 and limit to 1..MaxPageLimit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func validStatus(s types.RunStatus) bool {
	switch s {
	case types.RunStatusPending, types.RunStatusRunning, types.RunStatusCompleted, types.RunStatusFailed:
		return true
	}
	return false
}

func decodeKeywords(raw []byte) []string {
	var keywords []string
	if err := json.Unmarshal(raw, &keywords); err != nil || keywords == nil {
		return []string{}
	}
	return keywords
}
