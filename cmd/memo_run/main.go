// Package main provides the memo_run command: the monitoring API server and
// the batch tools the agent calls while it works.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lzrong0203/memo-run/internal/config"
)

// Exit codes of the batch tools.
const (
	exitRejected = 1
	exitBadInput = 2
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "memo_run",
	Short: "Threads keyword monitor",
	Long: "memo_run supervises the Threads monitoring agent, serves run history and reports over HTTP, " +
		"and provides the filter, dedup, scoring and report tools used by the agent.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger, _ := config.SetupLogger("", config.ParseLogLevel(logLevel))
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level for batch tools (debug, info, warn, error)")
}

// exitError carries a process exit code. A nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// exitCode maps an Execute error to the process exit code, reporting it on
// stderr.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "錯誤: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	os.Exit(exitCode(rootCmd.Execute(), os.Stderr))
}
