//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a monitoring run.
type RunStatus string

// Run statuses. pending -> running -> completed | failed.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is the persisted record of one monitoring run.
type Run struct {
	ID             uuid.UUID       `json:"id"`
	Status         RunStatus       `json:"status"`
	Keywords       []string        `json:"keywords"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	ReportMarkdown *string         `json:"report_markdown,omitempty"`
	Stats          json.RawMessage `json:"stats,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
}

// ReportAvailable reports whether a Markdown report was persisted for the run.
func (r *Run) ReportAvailable() bool {
	return r.ReportMarkdown != nil && *r.ReportMarkdown != ""
}

// RunSummary is the history-list view of a run.
type RunSummary struct {
	ID              uuid.UUID  `json:"id"`
	Status          RunStatus  `json:"status"`
	Keywords        []string   `json:"keywords"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Stats           *Stats     `json:"stats,omitempty"`
	ReportAvailable bool       `json:"report_available"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// Summary converts a run record into its history-list view. Stats that do
// not decode are omitted.
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:              r.ID,
		Status:          r.Status,
		Keywords:        r.Keywords,
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
		ReportAvailable: r.ReportAvailable(),
		ErrorMessage:    r.ErrorMessage,
	}
	if len(r.Stats) > 0 {
		var stats Stats
		if err := json.Unmarshal(r.Stats, &stats); err == nil {
			s.Stats = &stats
		}
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}
	return s
}

// RunRecord is the detail view of a run: its summary plus the rendered
// report. The raw agent payload is not exposed.
type RunRecord struct {
	RunSummary
	ReportMarkdown *string `json:"report_markdown,omitempty"`
}

// Record converts a run into its detail view.
func (r *Run) Record() RunRecord {
	return RunRecord{RunSummary: r.Summary(), ReportMarkdown: r.ReportMarkdown}
}

// ParseRunID parses a canonical lower-case UUID run identifier. Other UUID
// spellings (upper case, braces, urn prefix) are rejected.
func ParseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: "run_id", Message: "invalid run ID format"}
	}
	if id.String() != s {
		return uuid.Nil, &ValidationError{Field: "run_id", Message: "invalid run ID format"}
	}
	return id, nil
}

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}
