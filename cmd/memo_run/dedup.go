package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lzrong0203/memo-run/internal/config"
	"github.com/lzrong0203/memo-run/internal/db"
)

var (
	dedupDBPath      string
	dedupDatabaseURL string
	dedupCheck       string
	dedupAdd         string
	dedupCount       bool
	dedupClear       bool
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Inspect or update the processed-post store",
	RunE:  runDedup,
}

func init() {
	dedupCmd.Flags().StringVar(&dedupDBPath, "db", defaultDedupDB, "SQLite database file")
	dedupCmd.Flags().StringVar(&dedupDatabaseURL, "database-url", "", "Use this PostgreSQL database instead of --db")
	dedupCmd.Flags().StringVar(&dedupCheck, "check", "", "Report whether this post key was processed")
	dedupCmd.Flags().StringVar(&dedupAdd, "add", "", "Record this post key as processed")
	dedupCmd.Flags().BoolVar(&dedupCount, "count", false, "Print the number of processed posts")
	dedupCmd.Flags().BoolVar(&dedupClear, "clear", false, "Delete every processed-post record")
	dedupCmd.MarkFlagsMutuallyExclusive("check", "add", "count", "clear")
	rootCmd.AddCommand(dedupCmd)
}

func dedupDatabase() config.DatabaseConfig {
	if dedupDatabaseURL != "" {
		return config.DatabaseConfig{Driver: config.DriverPostgres, URL: dedupDatabaseURL}
	}
	return config.DatabaseConfig{Driver: config.DriverSQLite, Path: dedupDBPath}
}

func runDedup(cmd *cobra.Command, _ []string) error {
	if dedupCheck == "" && dedupAdd == "" && !dedupCount && !dedupClear {
		return cmd.Help()
	}

	ctx := cmd.Context()
	store, err := db.Open(ctx, dedupDatabase(), nil)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	switch {
	case dedupCheck != "":
		if store.IsProcessed(ctx, dedupCheck) {
			fmt.Fprintf(out, "DUPLICATE 貼文 %s 已處理過\n", dedupCheck)
		} else {
			fmt.Fprintf(out, "NEW 貼文 %s 尚未處理\n", dedupCheck)
		}
	case dedupAdd != "":
		if !store.MarkProcessed(ctx, dedupAdd) {
			fmt.Fprintln(out, "❌ 新增失敗（可能重複）")
			return &exitError{code: exitRejected}
		}
		fmt.Fprintf(out, "✅ 新增貼文 %s 成功\n", dedupAdd)
	case dedupCount:
		count, err := store.ProcessedCount(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "📊 已處理貼文數量: %d\n", count)
	case dedupClear:
		if _, err := store.ClearProcessed(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "✅ 已清空所有記錄")
	}
	return nil
}
