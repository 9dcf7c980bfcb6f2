package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lzrong0203/memo-run/internal/report"
	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/types"
)

// ReportResponse is the analytics view of a run, recomputed from the stored
// agent payload on every request. Fields are null when the run has no
// decodable payload or no posts.
type ReportResponse struct {
	Run           types.RunRecord       `json:"run"`
	AnalyzedPosts []types.Post          `json:"analyzed_posts"`
	BigFish       []types.Post          `json:"big_fish"`
	CategoryStats []report.CategoryStat `json:"category_stats"`
}

// decodeStoredPosts extracts the analyzed posts from a stored payload. It
// accepts the full payload object or a bare post array.
func decodeStoredPosts(raw json.RawMessage) ([]types.Post, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var posts []types.Post
	if err := json.Unmarshal(raw, &posts); err == nil {
		return posts, nil
	}

	var payload struct {
		AnalyzedPosts []types.Post `json:"analyzed_posts"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload.AnalyzedPosts, nil
}

// handleGetReport handles GET /api/reports/{run_id}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
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

	resp := ReportResponse{Run: run.Record()}

	posts, err := decodeStoredPosts(run.Result)
	if err != nil {
		s.logger.Warn("failed to decode stored result", "run_id", runID, "error", err)
	}
	if s.scoring.HasRules() && len(posts) > 0 {
		posts = scoring.ApplyAll(posts, s.scoring)
	}
	resp.AnalyzedPosts = posts

	if len(posts) > 0 {
		view := report.NewView(&types.MonitoringData{AnalyzedPosts: posts})
		resp.BigFish = view.BigFish
		resp.CategoryStats = view.CategoryStats
	}

	s.jsonResponse(w, http.StatusOK, resp)
}
