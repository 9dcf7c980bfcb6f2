// Package pipeline runs a batch of raw posts through filtering, dedup and
// light keyword tagging before AI analysis.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lzrong0203/memo-run/internal/filter"
	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/types"
)

// DefaultMinValidPosts is the new-post count below which the agent should
// search for more posts.
const DefaultMinValidPosts = 10

// DedupStore tracks which post links were already processed.
type DedupStore interface {
	IsProcessed(ctx context.Context, key string) bool
	MarkProcessed(ctx context.Context, key string) bool
}

// Options configures a batch run.
type Options struct {
	Filter  filter.Config
	Scoring scoring.Config
	Dedup   DedupStore
	// MinValidPosts is the new-post count below which NeedsMore is set.
	// Zero never asks for more; a negative value selects DefaultMinValidPosts.
	MinValidPosts int
	Logger        *slog.Logger
}

// PassedPost is a post that survived the batch. Its bonus_applied key is
// always present, as an empty list when no rule matched.
type PassedPost struct {
	types.Post
	BonusApplied []string `json:"bonus_applied"`
}

// Result is the outcome of one batch.
type Result struct {
	PassedPosts    []PassedPost `json:"passed_posts"`
	FilteredCount  int          `json:"filtered_count"`
	DuplicateCount int          `json:"duplicate_count"`
	NewCount       int          `json:"new_count"`
	TotalInput     int          `json:"total_input"`
	Summary        string       `json:"summary"`
	NeedsMore      bool         `json:"needs_more"`
	MinValidPosts  int          `json:"min_valid_posts"`
}

// Summary formats the counters the way the agent reports them. The
// orchestrator's progress parser recognizes this exact shape.
func Summary(total, filtered, duplicated, valid int) string {
	return fmt.Sprintf("掃描 %d 篇 → 過濾 %d 篇 → 重複 %d 篇 → 有效 %d 篇", total, filtered, duplicated, valid)
}

// Process runs every post, in order, through:
//
//  1. a deep copy (the input is never modified)
//  2. missing content or link: filtered
//  3. the content filter: filtered
//  4. dedup lookup by link: duplicate
//  5. dedup mark
//  6. content-only rule matching into BonusApplied
//
// A nil Dedup store treats every post as new.
func Process(ctx context.Context, posts []types.Post, opts Options) *Result {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minValid := opts.MinValidPosts
	if minValid < 0 {
		minValid = DefaultMinValidPosts
	}

	res := &Result{
		PassedPosts:   []PassedPost{},
		TotalInput:    len(posts),
		MinValidPosts: minValid,
	}

	for _, post := range posts {
		p := post.Clone()

		if p.Content == "" || p.Link == "" {
			res.FilteredCount++
			continue
		}

		if filter.ShouldFilter(p.Content, opts.Filter) {
			res.FilteredCount++
			continue
		}

		if opts.Dedup != nil {
			if opts.Dedup.IsProcessed(ctx, p.Link) {
				res.DuplicateCount++
				continue
			}
			if !opts.Dedup.MarkProcessed(ctx, p.Link) {
				logger.Warn("post was not recorded as processed", "link", p.Link)
			}
		}

		matched := scoring.MatchRules(p.Content, opts.Scoring)
		if matched == nil {
			matched = []string{}
		}
		p.BonusApplied = matched
		res.PassedPosts = append(res.PassedPosts, PassedPost{Post: p, BonusApplied: matched})
	}

	res.NewCount = len(res.PassedPosts)
	res.NeedsMore = res.NewCount < minValid
	res.Summary = Summary(res.TotalInput, res.FilteredCount, res.DuplicateCount, res.NewCount)

	logger.Info("pipeline batch processed",
		"total", res.TotalInput, "filtered", res.FilteredCount,
		"duplicates", res.DuplicateCount, "new", res.NewCount)
	return res
}
