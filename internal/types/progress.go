//nolint:revive // types is a standard Go package name pattern
package types

import "github.com/google/uuid"

// ProgressType names the kind of a progress message.
type ProgressType string

// Progress message types.
const (
	ProgressStatus        ProgressType = "status"
	ProgressKeyword       ProgressType = "keyword_progress"
	ProgressPipelineStats ProgressType = "pipeline_stats"
	ProgressCompleted     ProgressType = "completed"
	ProgressError         ProgressType = "error"
)

const (
	statusRunning    = "running"
	keepaliveMessage = "waiting for progress..."
)

// ProgressMessage is one event on a run's progress channel.
type ProgressMessage struct {
	Type ProgressType `json:"type"`
	Data any          `json:"data"`
}

// IsTerminal reports whether no further messages follow this one.
func (m ProgressMessage) IsTerminal() bool {
	return m.Type == ProgressCompleted || m.Type == ProgressError
}

// StatusData is the payload of a status message.
type StatusData struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// KeywordProgressData reports which keyword the agent is searching.
type KeywordProgressData struct {
	Keyword string `json:"keyword"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// PipelineStatsData mirrors the pipeline's summary counters.
type PipelineStatsData struct {
	Scanned    int `json:"scanned"`
	Filtered   int `json:"filtered"`
	Duplicated int `json:"duplicated"`
	Valid      int `json:"valid"`
}

// CompletedData is the payload of the terminal completed message.
type CompletedData struct {
	RunID           uuid.UUID `json:"run_id"`
	ReportAvailable bool      `json:"report_available"`
}

// ErrorData is the payload of the terminal error message.
type ErrorData struct {
	Message string `json:"message"`
}

// StatusMessage builds a running status message.
func StatusMessage(message string) ProgressMessage {
	return ProgressMessage{Type: ProgressStatus, Data: StatusData{Status: statusRunning, Message: message}}
}

// KeepaliveMessage is sent to observers when no progress arrived for a while.
func KeepaliveMessage() ProgressMessage {
	return ProgressMessage{Type: ProgressStatus, Data: StatusData{Message: keepaliveMessage}}
}

// CompletedMessage builds the terminal completed message.
func CompletedMessage(runID uuid.UUID, reportAvailable bool) ProgressMessage {
	return ProgressMessage{Type: ProgressCompleted, Data: CompletedData{RunID: runID, ReportAvailable: reportAvailable}}
}

// ErrorMessage builds the terminal error message.
func ErrorMessage(message string) ProgressMessage {
	return ProgressMessage{Type: ProgressError, Data: ErrorData{Message: message}}
}
