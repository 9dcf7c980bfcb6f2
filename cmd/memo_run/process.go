package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lzrong0203/memo-run/internal/db"
	"github.com/lzrong0203/memo-run/internal/filter"
	"github.com/lzrong0203/memo-run/internal/pipeline"
	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/types"
)

const (
	defaultFilterConfig  = "config/filters.yml"
	defaultScoringConfig = "config/scoring.yml"
	defaultDedupDB       = "data/memo_run.db"
)

var (
	processInput         string
	processFilterConfig  string
	processDedupDB       string
	processScoringConfig string
	processMinValid      int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Filter, dedup and tag a batch of raw posts",
	Long: "Read a JSON array of posts (from --input or stdin), drop filtered and already processed posts, " +
		"tag the rest with matching scoring rules and print the batch result as JSON.",
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processInput, "input", "", "JSON input file (default stdin)")
	processCmd.Flags().StringVar(&processFilterConfig, "filter-config", defaultFilterConfig, "Filter rules YAML")
	processCmd.Flags().StringVar(&processDedupDB, "dedup-db", defaultDedupDB, "SQLite dedup database")
	processCmd.Flags().StringVar(&processScoringConfig, "scoring-config", defaultScoringConfig, "Scoring rules YAML")
	processCmd.Flags().IntVar(&processMinValid, "min-valid-posts", pipeline.DefaultMinValidPosts, "New posts below which more searching is needed")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	raw, err := readInput(processInput, cmd.InOrStdin())
	if err != nil {
		return exitWith(exitBadInput, "無法讀取輸入 - %v", err)
	}
	if !isJSONArray(raw) {
		return exitWith(exitBadInput, "輸入必須是 JSON 陣列")
	}

	var posts []types.Post
	if err := json.Unmarshal(raw, &posts); err != nil {
		return exitWith(exitBadInput, "無法讀取輸入 - %v", err)
	}

	filterCfg, err := filter.LoadConfig(processFilterConfig)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return exitWith(exitBadInput, "%v", err)
		}
		slog.Warn("filter config not found, skipping filter", "path", processFilterConfig)
	}

	ctx := cmd.Context()
	store, err := db.OpenSQLite(ctx, processDedupDB, slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	result := pipeline.Process(ctx, posts, pipeline.Options{
		Filter:        filterCfg,
		Scoring:       scoring.LoadConfig(processScoringConfig),
		Dedup:         store,
		MinValidPosts: processMinValid,
		Logger:        slog.Default(),
	})
	return writeJSON(cmd.OutOrStdout(), result)
}
