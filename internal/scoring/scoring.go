// Package scoring adjusts post importance with keyword bonus rules.
package scoring

import (
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lzrong0203/memo-run/internal/types"
)

// DefaultMaxScore caps adjusted importance when the config sets no maximum.
const DefaultMaxScore = 15

// Rule grants Bonus once when any of its keywords appears in a post.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Bonus    int      `yaml:"bonus" json:"bonus"`
}

// Config is the scoring rule set, as stored in scoring.yml.
type Config struct {
	Rules    []Rule `yaml:"bonus_rules" json:"bonus_rules"`
	MaxScore int    `yaml:"max_score" json:"max_score"`
}

// EmptyConfig has no rules and the default cap.
func EmptyConfig() Config {
	return Config{MaxScore: DefaultMaxScore}
}

// HasRules reports whether any rule is configured.
func (c Config) HasRules() bool {
	return len(c.Rules) > 0
}

func (c Config) maxScore() int {
	if c.MaxScore <= 0 {
		return DefaultMaxScore
	}
	return c.MaxScore
}

// LoadConfig reads scoring rules from a YAML file. A missing or unreadable
// file yields an empty rule set and a warning, never an error.
func LoadConfig(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("scoring config unavailable, using empty rules", "path", path, "error", err)
		return EmptyConfig()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		slog.Error("failed to parse scoring config, using empty rules", "path", path, "error", err)
		return EmptyConfig()
	}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = DefaultMaxScore
	}
	return cfg
}

// MatchRules returns the names of rules with at least one keyword in text,
// in rule order.
func MatchRules(text string, cfg Config) []string {
	var names []string
	for _, rule := range cfg.Rules {
		if ruleMatches(text, rule) {
			names = append(names, ruleName(rule))
		}
	}
	return names
}

// Apply returns a scored copy of post. The match text is the content plus
// the analysis summary; each rule fires at most once. The copy carries
// AdjustedImportance = min(importance + bonuses, max) and one BonusDetail
// per fired rule. Importance itself is left untouched.
func Apply(post types.Post, cfg Config) types.Post {
	result := post.Clone()
	if result.Analysis == nil {
		result.Analysis = &types.Analysis{}
	}
	base := result.Analysis.Importance
	matchText := post.Content + " " + post.Summary()

	total := 0
	detail := []types.BonusDetail{}
	for _, rule := range cfg.Rules {
		if !ruleMatches(matchText, rule) {
			continue
		}
		total += rule.Bonus
		detail = append(detail, types.BonusDetail{RuleName: ruleName(rule), Bonus: rule.Bonus})
	}

	adjusted := min(base+total, cfg.maxScore())
	result.Analysis.AdjustedImportance = &adjusted
	result.Analysis.BonusDetail = detail

	if len(detail) > 0 {
		slog.Debug("applied scoring bonus", "post_id", post.ID, "base", base, "adjusted", adjusted, "rules", len(detail))
	}
	return result
}

// ApplyAll scores every post and returns new posts in the same order.
func ApplyAll(posts []types.Post, cfg Config) []types.Post {
	out := make([]types.Post, len(posts))
	for i, p := range posts {
		out[i] = Apply(p, cfg)
	}
	return out
}

func ruleMatches(text string, rule Rule) bool {
	for _, kw := range rule.Keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func ruleName(rule Rule) string {
	if rule.Name == "" {
		return "unknown"
	}
	return rule.Name
}
