// Package types provides type definitions for structured data used throughout the memo-run system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PostID identifies a post in the agent payload. The agent emits either a
// JSON string or a JSON number; both are held as text.
type PostID string

// UnmarshalJSON accepts a JSON string or number.
func (id *PostID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PostID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("post id must be a string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = PostID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = PostID(n.String())
	return nil
}

// Post is a single social-feed post as collected by the agent.
type Post struct {
	ID        PostID    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	Link      string    `json:"link"`
	Timestamp string    `json:"timestamp,omitempty"`
	Analysis  *Analysis `json:"analysis,omitempty"`
	// BonusApplied lists scoring rules whose keywords appear in the content.
	// Set by the pipeline only.
	BonusApplied []string `json:"bonus_applied,omitempty"`
}

// Analysis is the AI-produced classification of a post, optionally enriched
// by the scoring engine.
type Analysis struct {
	Categories []string  `json:"categories"`
	Importance int       `json:"importance"`
	Summary    string    `json:"summary"`
	Entities   *Entities `json:"entities,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	// AdjustedImportance is Importance plus matched bonuses, capped at the
	// configured maximum. Nil until the post has been scored.
	AdjustedImportance *int          `json:"adjusted_importance,omitempty"`
	BonusDetail        []BonusDetail `json:"bonus_detail,omitempty"`
}

// Entities holds named entities extracted from a post.
type Entities struct {
	Persons       []string `json:"persons,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Events        []string `json:"events,omitempty"`
}

// BonusDetail records one scoring rule that fired for a post.
type BonusDetail struct {
	RuleName string `json:"rule_name"`
	Bonus    int    `json:"bonus"`
}

// EffectiveImportance returns the adjusted importance when present, the raw
// importance otherwise, and 0 for posts without analysis.
func (p *Post) EffectiveImportance() int {
	if p.Analysis == nil {
		return 0
	}
	if p.Analysis.AdjustedImportance != nil {
		return *p.Analysis.AdjustedImportance
	}
	return p.Analysis.Importance
}

// Importance returns the raw AI importance, or 0 without analysis.
func (p *Post) Importance() int {
	if p.Analysis == nil {
		return 0
	}
	return p.Analysis.Importance
}

// Categories returns the analysis categories, or nil without analysis.
func (p *Post) Categories() []string {
	if p.Analysis == nil {
		return nil
	}
	return p.Analysis.Categories
}

// Summary returns the analysis summary, or "" without analysis.
func (p *Post) Summary() string {
	if p.Analysis == nil {
		return ""
	}
	return p.Analysis.Summary
}

// Clone returns a deep copy of the post.
func (p Post) Clone() Post {
	out := p
	out.BonusApplied = cloneStrings(p.BonusApplied)
	if p.Analysis != nil {
		a := *p.Analysis
		a.Categories = cloneStrings(p.Analysis.Categories)
		if p.Analysis.AdjustedImportance != nil {
			v := *p.Analysis.AdjustedImportance
			a.AdjustedImportance = &v
		}
		if p.Analysis.BonusDetail != nil {
			a.BonusDetail = append([]BonusDetail(nil), p.Analysis.BonusDetail...)
		}
		if p.Analysis.Entities != nil {
			e := Entities{
				Persons:       cloneStrings(p.Analysis.Entities.Persons),
				Locations:     cloneStrings(p.Analysis.Entities.Locations),
				Organizations: cloneStrings(p.Analysis.Entities.Organizations),
				Events:        cloneStrings(p.Analysis.Entities.Events),
			}
			a.Entities = &e
		}
		out.Analysis = &a
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// Stats holds the agent's counters. Every counter is optional; missing
// counters render as "N/A".
type Stats struct {
	TotalSearched       *int `json:"total_searched,omitempty"`
	FilteredByHardRules *int `json:"filtered_by_hard_rules,omitempty"`
	FilteredByDedup     *int `json:"filtered_by_dedup,omitempty"`
	FilteredByAI        *int `json:"filtered_by_ai,omitempty"`
	ValidCount          *int `json:"valid_count,omitempty"`
}

// MonitoringData is the terminal JSON payload emitted by the agent.
type MonitoringData struct {
	AnalyzedPosts []Post   `json:"analyzed_posts"`
	Stats         Stats    `json:"stats"`
	Keywords      []string `json:"keywords"`
	Timestamp     string   `json:"timestamp"`
}
