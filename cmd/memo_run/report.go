package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lzrong0203/memo-run/internal/config"
	"github.com/lzrong0203/memo-run/internal/report"
	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/types"
)

// Report output formats.
const (
	formatAll      = "all"
	formatMarkdown = "markdown"
	formatLine     = "line"
	formatTelegram = "telegram"
)

const notifyTimeout = 15 * time.Second

var (
	reportInput         string
	reportOutputDir     string
	reportFormat        string
	reportScoringConfig string
	reportURL           string
	reportNotify        bool
	reportGist          bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the Markdown report and chat summaries for a payload",
	Long: "Validate a monitoring payload (from --input or stdin), apply scoring rules and render the " +
		"Markdown report, the LINE summary and the Telegram summary.",
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportInput, "input", "", "Monitoring payload JSON file (default stdin)")
	reportCmd.Flags().StringVar(&reportOutputDir, "output-dir", report.DefaultReportsDir, "Directory for saved reports")
	reportCmd.Flags().StringVar(&reportFormat, "format", formatAll, "Output format: all, markdown, line or telegram")
	reportCmd.Flags().StringVar(&reportScoringConfig, "scoring-config", defaultScoringConfig, "Scoring rules YAML")
	reportCmd.Flags().StringVar(&reportURL, "report-url", "", "Link to the full report, appended to the summaries")
	reportCmd.Flags().BoolVar(&reportGist, "gist", false, "Upload the report as a GitHub gist (GITHUB_GIST_TOKEN) and link it from the summaries")
	reportCmd.Flags().BoolVar(&reportNotify, "notify", false, "Send the Telegram summary using TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	switch reportFormat {
	case formatAll, formatMarkdown, formatLine, formatTelegram:
	default:
		return fmt.Errorf("unknown format %q (want all, markdown, line or telegram)", reportFormat)
	}

	raw, err := readInput(reportInput, cmd.InOrStdin())
	if err != nil {
		return exitWith(exitBadInput, "無法讀取輸入資料 - %v", err)
	}

	composer := &report.Composer{
		ReportsDir: reportOutputDir,
		Scoring:    scoring.LoadConfig(reportScoringConfig),
		ReportURL:  reportURL,
		Logger:     slog.Default(),
	}

	data, err := composer.Prepare(raw)
	if err != nil {
		return exitWith(exitRejected, "資料驗證失敗 - %v", err)
	}

	if reportGist && reportFormat != formatMarkdown {
		publisher, err := gistPublisher()
		if err != nil {
			return err
		}
		composer.Publisher = publisher
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	switch reportFormat {
	case formatLine:
		url := summaryURL(ctx, composer, data)
		fmt.Fprintln(out, report.LineSummary(data, url))
		return nil
	case formatTelegram:
		summary := report.TelegramSummary(data, summaryURL(ctx, composer, data))
		fmt.Fprintln(out, summary)
		return sendTelegram(ctx, summary)
	case formatMarkdown:
		path, err := report.SaveReport(report.MarkdownReport(data), reportOutputDir, data.Timestamp)
		if err != nil {
			return exitWith(exitRejected, "生成報告失敗 - %v", err)
		}
		fmt.Fprintf(out, "報告已儲存: %s\n", path)
		return nil
	}

	outputs, err := composer.Compose(ctx, raw)
	if err != nil {
		return exitWith(exitRejected, "生成報告失敗 - %v", err)
	}
	printOutputs(out, outputs)
	return sendTelegram(ctx, outputs.TelegramSummary)
}

// gistPublisher returns nil, with a warning, when no token is configured.
func gistPublisher() (report.Publisher, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	publisher := newPublisher(cfg.Notifications.Gist)
	if publisher == nil {
		slog.Warn("GITHUB_GIST_TOKEN is not set, report will not be uploaded")
	}
	return publisher, nil
}

// summaryURL uploads the report when a publisher is configured.
func summaryURL(ctx context.Context, composer *report.Composer, data *types.MonitoringData) string {
	if composer.Publisher == nil {
		return reportURL
	}
	url, _ := composer.Publish(ctx, data, report.MarkdownReport(data), report.ReportFilename(data.Timestamp))
	return url
}

func printOutputs(w io.Writer, outputs *report.Outputs) {
	fmt.Fprintf(w, "報告已儲存: %s\n", outputs.ReportPath)
	if outputs.Published {
		fmt.Fprintf(w, "Gist URL: %s\n", outputs.ReportURL)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== LINE 摘要 ===")
	fmt.Fprintln(w, outputs.LineSummary)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Telegram 摘要 ===")
	fmt.Fprintln(w, outputs.TelegramSummary)
}

// sendTelegram delivers summary when --notify is set.
func sendTelegram(ctx context.Context, summary string) error {
	if !reportNotify {
		return nil
	}
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	notifier := newNotifier(cfg.Notifications)
	if notifier == nil {
		return errors.New("telegram is not configured (set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID)")
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := notifier.PublishDigest(ctx, summary); err != nil {
		return fmt.Errorf("failed to send telegram summary: %w", err)
	}
	return nil
}
