package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lzrong0203/memo-run/internal/monitor"
	"github.com/lzrong0203/memo-run/internal/types"
)

const (
	maxStartBodyBytes = 64 << 10
	wsWriteTimeout    = 10 * time.Second

	// CloseRunUnavailable is the WebSocket close code for unknown runs and
	// runs whose progress stream is no longer available.
	CloseRunUnavailable = 4004
)

// handleStartMonitor handles POST /api/monitor/start
func (s *Server) handleStartMonitor(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxStartBodyBytes)

	var req types.MonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Debug("invalid start request body", "error", err)
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	runID, err := s.runs.Start(r.Context(), req.Keywords)
	if err != nil {
		status := HTTPStatus(err)
		message := "Internal server error. Please try again later."
		switch status {
		case http.StatusTooManyRequests:
			message = "Too many concurrent runs. Please try again later."
		case http.StatusServiceUnavailable:
			message = "Server is shutting down. Please try again later."
		default:
			s.logger.Error("failed to start monitoring run", "error", err)
		}
		s.jsonResponse(w, status, types.MonitorResponse{
			RunID:   "",
			Status:  types.RunStatusFailed,
			Message: message,
		})
		return
	}

	s.jsonResponse(w, http.StatusAccepted, types.MonitorResponse{
		RunID:   runID.String(),
		Status:  types.RunStatusPending,
		Message: fmt.Sprintf("Monitoring started for %d keyword(s)", len(req.Keywords)),
	})
}

// lookupRun loads the run record, mapping a missing record to ErrRunNotFound.
func (s *Server) lookupRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// handleMonitorWebSocket handles GET /api/monitor/ws/{run_id}
func (s *Server) handleMonitorWebSocket(w http.ResponseWriter, r *http.Request) {
	runID, err := types.ParseRunID(r.PathValue("run_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("run_id", runID)

	if _, err := s.lookupRun(r.Context(), runID); err != nil {
		reason := "Run not found"
		if !errors.Is(err, ErrRunNotFound) {
			logger.Error("failed to load run", "error", err)
			reason = "Database error"
		}
		closeWithCode(conn, CloseRunUnavailable, reason)
		return
	}

	sub, err := s.runs.Subscribe(runID)
	if err != nil {
		reason := "No active monitor for this run"
		if errors.Is(err, monitor.ErrObserverAttached) {
			reason = "Run already has an observer"
		}
		logger.Info("websocket rejected", "reason", reason)
		closeWithCode(conn, CloseRunUnavailable, reason)
		return
	}
	defer sub.Close()

	logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read loop only exists to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, monitor.ErrChannelClosed) {
				closeWithCode(conn, websocket.CloseGoingAway, "Monitor stopped")
			}
			logger.Info("websocket closed", "reason", err)
			return
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
		if err := conn.WriteJSON(msg); err != nil {
			logger.Info("websocket write failed", "error", err)
			return
		}

		if msg.IsTerminal() {
			logger.Info("websocket terminal message sent", "type", msg.Type)
			closeWithCode(conn, websocket.CloseNormalClosure, "")
			return
		}
	}
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
}

// handleMonitorStream handles GET /api/monitor/stream/{run_id}
func (s *Server) handleMonitorStream(w http.ResponseWriter, r *http.Request) {
	runID, err := types.ParseRunID(r.PathValue("run_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}

	if _, err := s.lookupRun(r.Context(), runID); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Run not found")
			return
		}
		s.logger.Error("failed to load run", "run_id", runID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	sub, err := s.runs.Subscribe(runID)
	if err != nil {
		msg := "No active monitor for this run"
		if errors.Is(err, monitor.ErrObserverAttached) {
			msg = "Run already has an observer"
		}
		s.errorResponse(w, HTTPStatus(err), msg)
		return
	}
	defer sub.Close()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	for {
		msg, err := sub.Next(r.Context())
		if err != nil {
			if errors.Is(err, monitor.ErrChannelClosed) {
				sse.WriteError("Monitor stopped")
			}
			return
		}
		if err := sse.WriteMessage(msg); err != nil {
			s.logger.Info("sse write failed", "run_id", runID, "error", err)
			return
		}
		if msg.IsTerminal() {
			return
		}
	}
}
