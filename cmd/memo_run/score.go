package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/types"
)

const scoreSummaryRunes = 50

var (
	scoreInput  string
	scoreConfig string
	scoreOutput string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Apply scoring bonus rules to analyzed posts",
	Long: "Read a monitoring payload, add rule bonuses to each post's importance and either write the scored " +
		"payload to --output or print one line per post.",
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreInput, "input", "", "Monitoring payload JSON file")
	scoreCmd.Flags().StringVar(&scoreConfig, "config", defaultScoringConfig, "Scoring rules YAML")
	scoreCmd.Flags().StringVar(&scoreOutput, "output", "", "Write the scored payload here instead of printing a summary")
	_ = scoreCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	cfg := scoring.LoadConfig(scoreConfig)

	raw, err := readInput(scoreInput, nil)
	if err != nil {
		return exitWith(exitBadInput, "無法讀取輸入資料 - %v", err)
	}

	// Unknown top-level members pass through untouched.
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return exitWith(exitBadInput, "無法讀取輸入資料 - %v", err)
	}
	var posts []types.Post
	if members, ok := doc["analyzed_posts"]; ok {
		if err := json.Unmarshal(members, &posts); err != nil {
			return exitWith(exitBadInput, "無法讀取輸入資料 - %v", err)
		}
	}

	scored := scoring.ApplyAll(posts, cfg)

	out := cmd.OutOrStdout()
	if scoreOutput == "" {
		printScoreSummary(out, scored)
		return nil
	}

	encoded, err := json.Marshal(scored)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	doc["analyzed_posts"] = encoded

	f, err := os.Create(scoreOutput)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	if err := writeJSON(f, doc); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(out, "已輸出: %s\n", scoreOutput)
	return nil
}

// printScoreSummary prints "[base→adjusted] summary  (rule+bonus, ...)" per post.
func printScoreSummary(w io.Writer, posts []types.Post) {
	for i := range posts {
		p := &posts[i]
		summary := p.Summary()
		if summary == "" {
			summary = "?"
		}
		if r := []rune(summary); len(r) > scoreSummaryRunes {
			summary = string(r[:scoreSummaryRunes])
		}

		bonus := "無加分"
		if p.Analysis != nil && len(p.Analysis.BonusDetail) > 0 {
			parts := make([]string, 0, len(p.Analysis.BonusDetail))
			for _, d := range p.Analysis.BonusDetail {
				parts = append(parts, fmt.Sprintf("%s+%d", d.RuleName, d.Bonus))
			}
			bonus = strings.Join(parts, ", ")
		}
		fmt.Fprintf(w, "[%d→%d] %s  (%s)\n", p.Importance(), p.EffectiveImportance(), summary, bonus)
	}
}
