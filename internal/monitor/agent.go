package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Placeholders substituted in agent arguments.
const (
	KeywordsPlaceholder = "{keywords}"
	RunIDPlaceholder    = "{run_id}"
)

const (
	stderrTailLines = 20
	// waitDelay bounds how long Wait blocks on inherited pipes after the
	// agent is killed.
	waitDelay = 5 * time.Second
)

// Agent runs the external monitoring agent for one run.
type Agent interface {
	// Run launches the agent and blocks until it exits. Every stdout line
	// is passed to onLine, in order, from a single goroutine.
	Run(ctx context.Context, runID uuid.UUID, keywords []string, onLine func(string)) error
}

// CommandAgent runs the agent as a subprocess.
type CommandAgent struct {
	Command string
	Args    []string
	WorkDir string
	// Timeout is the wall-clock limit; zero disables it.
	Timeout time.Duration
	// OnStderr receives stderr lines for debug logging. Optional.
	OnStderr func(string)
}

var _ Agent = (*CommandAgent)(nil)

// ExpandArgs substitutes {keywords} (comma-joined) and {run_id} in the
// configured arguments.
func (a *CommandAgent) ExpandArgs(runID uuid.UUID, keywords []string) []string {
	r := strings.NewReplacer(
		KeywordsPlaceholder, strings.Join(keywords, ","),
		RunIDPlaceholder, runID.String(),
	)
	args := make([]string, len(a.Args))
	for i, arg := range a.Args {
		args[i] = r.Replace(arg)
	}
	return args
}

// Run implements Agent. It returns ErrAgentNotFound when the command cannot
// be resolved, an error wrapping ErrAgentTimeout when the time limit killed
// the process, *ExitError on a non-zero exit, and ctx.Err() when ctx was
// cancelled.
func (a *CommandAgent) Run(ctx context.Context, runID uuid.UUID, keywords []string, onLine func(string)) error {
	path, err := exec.LookPath(a.Command)
	if err != nil {
		return ErrAgentNotFound
	}

	runCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, a.ExpandArgs(runID, keywords)...)
	cmd.Dir = a.WorkDir
	cmd.WaitDelay = waitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return ErrAgentNotFound
		}
		return fmt.Errorf("failed to start agent: %w", err)
	}

	tail := newLineRing(stderrTailLines)
	var waitErr error

	var g errgroup.Group
	g.Go(func() error {
		return readLines(stdoutR, onLine)
	})
	g.Go(func() error {
		return readLines(stderrR, func(line string) {
			tail.add(line)
			if a.OnStderr != nil {
				a.OnStderr(line)
			}
		})
	})
	g.Go(func() error {
		waitErr = cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		return nil
	})
	readErr := g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s", ErrAgentTimeout, a.Timeout)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), StderrTail: tail.lines()}
		}
		return fmt.Errorf("agent wait failed: %w", waitErr)
	}
	if readErr != nil {
		return fmt.Errorf("failed to read agent output: %w", readErr)
	}
	return nil
}

// readLines calls fn for every line of r with invalid UTF-8 replaced and
// trailing whitespace removed. A final line without newline is delivered too.
func readLines(r io.Reader, fn func(string)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.ToValidUTF8(line, "\uFFFD")
			fn(strings.TrimRightFunc(line, unicode.IsSpace))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
