package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lzrong0203/memo-run/internal/filter"
)

var (
	filterContent string
	filterConfig  string
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Check whether a post's content would be filtered",
	Long:  "Exit 0 when the content is kept, 1 when it is filtered, 2 when the rules cannot be loaded.",
	RunE:  runFilter,
}

func init() {
	filterCmd.Flags().StringVar(&filterContent, "content", "", "Content to check")
	filterCmd.Flags().StringVar(&filterConfig, "config", defaultFilterConfig, "Filter rules YAML")
	_ = filterCmd.MarkFlagRequired("content")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(cmd *cobra.Command, _ []string) error {
	cfg, err := filter.LoadConfig(filterConfig)
	if err != nil {
		return exitWith(exitBadInput, "%v", err)
	}

	out := cmd.OutOrStdout()
	if filter.ShouldFilter(filterContent, cfg) {
		fmt.Fprintln(out, "❌ 內容被過濾（應該丟棄）")
		return &exitError{code: exitRejected}
	}
	fmt.Fprintln(out, "✅ 內容通過過濾（應該保留）")
	return nil
}
