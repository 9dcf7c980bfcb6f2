package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/lzrong0203/memo-run/internal/db"
	"github.com/lzrong0203/memo-run/internal/types"
)

// HistoryResponse is one page of the run history.
type HistoryResponse struct {
	Runs  []types.RunSummary `json:"runs"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// queryInt reads an integer query parameter within [lo, hi].
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, &types.ValidationError{Field: name, Message: "out of range"}
	}
	return v, nil
}

// handleListHistory handles GET /api/history
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1, 1, math.MaxInt32)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := queryInt(r, "limit", db.DefaultPageLimit, 1, db.MaxPageLimit)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	resp := HistoryResponse{Runs: []types.RunSummary{}, Page: page, Limit: limit}

	result, err := s.store.ListRuns(r.Context(), page, limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.jsonResponse(w, http.StatusOK, resp)
		return
	}

	for i := range result.Runs {
		resp.Runs = append(resp.Runs, result.Runs[i].Summary())
	}
	resp.Total = result.Total
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleGetHistory handles GET /api/history/{run_id}
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	runID, err := types.ParseRunID(r.PathValue("run_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}

	run, err := s.lookupRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Run not found")
			return
		}
		s.logger.Error("failed to get run", "run_id", runID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	s.jsonResponse(w, http.StatusOK, run.Record())
}
