// Package filter decides whether a post's content should be dropped before
// analysis, using length limits, priority keywords and hard exclusions.
package filter

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Config holds the filtering rules, as stored in filters.yml.
type Config struct {
	MinContentLength     int      `yaml:"min_content_length" json:"min_content_length"`
	PriorityKeepKeywords []string `yaml:"priority_keep_keywords" json:"priority_keep_keywords"`
	HardExclude          []string `yaml:"hard_exclude" json:"hard_exclude"`
	MinExcludeWordLength int      `yaml:"min_exclude_word_length" json:"min_exclude_word_length"`
}

// LoadConfig reads filter rules from a YAML file. The returned error wraps
// fs.ErrNotExist when the file is missing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read filter config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse filter config %s: %w", path, err)
	}

	slog.Debug("loaded filter config", "path", path,
		"priority_keywords", len(cfg.PriorityKeepKeywords), "hard_exclude", len(cfg.HardExclude))
	return cfg, nil
}

// ShouldFilter reports whether content should be dropped. Checks run in a
// fixed order and the first decisive one wins:
//
//  1. empty content is dropped
//  2. content shorter than MinContentLength characters is dropped
//  3. content containing any priority keyword is kept
//  4. content containing a hard-exclude word of at least
//     MinExcludeWordLength characters is dropped
//  5. everything else is kept
//
// Empty keywords never match.
func ShouldFilter(content string, cfg Config) bool {
	if content == "" {
		return true
	}

	if n := utf8.RuneCountInString(content); n < cfg.MinContentLength {
		slog.Debug("content too short, filtering", "length", n, "min", cfg.MinContentLength)
		return true
	}

	for _, kw := range cfg.PriorityKeepKeywords {
		if kw != "" && strings.Contains(content, kw) {
			slog.Debug("content contains priority keyword, keeping", "keyword", kw)
			return false
		}
	}

	for _, word := range cfg.HardExclude {
		if word == "" || utf8.RuneCountInString(word) < cfg.MinExcludeWordLength {
			continue
		}
		if strings.Contains(content, word) {
			slog.Debug("content contains exclude word, filtering", "word", word)
			return true
		}
	}

	return false
}
