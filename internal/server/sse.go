package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lzrong0203/memo-run/internal/types"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the event-stream headers and commits the response.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteMessage sends a progress message named after its type. The data line
// carries the whole message so SSE and WebSocket clients decode the same shape.
func (s *SSEWriter) WriteMessage(msg types.ProgressMessage) error {
	return s.WriteEvent(string(msg.Type), msg)
}

// WriteError sends a terminal error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteMessage(types.ErrorMessage(message)) //nolint:errcheck
}
