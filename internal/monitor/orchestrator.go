// Package monitor supervises monitoring runs: it admits runs, drives the
// external agent, streams its progress to one observer, and records the
// outcome in the run registry.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lzrong0203/memo-run/internal/db"
	"github.com/lzrong0203/memo-run/internal/notify"
	"github.com/lzrong0203/memo-run/internal/report"
	"github.com/lzrong0203/memo-run/internal/schemas"
	"github.com/lzrong0203/memo-run/internal/types"
)

// Defaults for Options left zero.
const (
	DefaultMaxConcurrentRuns = 5
	DefaultGracePeriod       = 5 * time.Minute
	DefaultKeepalive         = 60 * time.Second
	DefaultMaxCapturedLines  = 5000
)

// GenericFailureMessage is the only failure text observers ever see.
const GenericFailureMessage = "Monitoring run failed. Check server logs for details."

// Stored failure reasons. Raw detail goes to the log only.
const (
	reasonInternal     = "internal error during monitoring run"
	reasonCancelled    = "monitoring run cancelled"
	reasonReportFailed = "report generation failed"
)

const (
	storeTimeout  = 10 * time.Second
	notifyTimeout = 15 * time.Second
)

// Registry persists run records.
type Registry interface {
	CreateRun(ctx context.Context, runID uuid.UUID, keywords []string) error
	UpdateRun(ctx context.Context, runID uuid.UUID, update db.RunUpdate) (bool, error)
}

// Composer turns the agent's terminal payload into report artifacts.
type Composer interface {
	Compose(ctx context.Context, raw []byte) (*report.Outputs, error)
}

// Options configures an Orchestrator.
type Options struct {
	Agent    Agent
	Registry Registry
	Composer Composer
	// Notifier receives the Telegram summary of each report. Optional.
	Notifier notify.Notifier

	MaxConcurrentRuns int
	GracePeriod       time.Duration
	KeepaliveInterval time.Duration
	MaxCapturedLines  int
	Logger            *slog.Logger
}

type activeRun struct {
	cancel context.CancelFunc
}

type channelEntry struct {
	ch       *Channel
	attached bool
	timer    *time.Timer
}

// Orchestrator owns the active runs and their progress channels.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	inflight map[uuid.UUID]*activeRun
	channels map[uuid.UUID]*channelEntry
	closed   bool
	wg       sync.WaitGroup
}

// New creates an Orchestrator. Agent, Registry and Composer are required.
func New(opts Options) *Orchestrator {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepalive
	}
	if opts.MaxCapturedLines <= 0 {
		opts.MaxCapturedLines = DefaultMaxCapturedLines
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:       opts,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		inflight:   make(map[uuid.UUID]*activeRun),
		channels:   make(map[uuid.UUID]*channelEntry),
	}
}

// ActiveRuns returns the number of runs that have not reached a terminal state.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// Start admits a run, records it as pending and launches the agent in the
// background. It returns ErrAtCapacity without creating a record when
// MaxConcurrentRuns runs are in flight.
func (o *Orchestrator) Start(ctx context.Context, keywords []string) (uuid.UUID, error) {
	runID := uuid.New()
	runCtx, cancel := context.WithCancel(o.baseCtx)
	ch := newChannel()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return uuid.Nil, ErrShuttingDown
	}
	if len(o.inflight) >= o.opts.MaxConcurrentRuns {
		o.mu.Unlock()
		cancel()
		return uuid.Nil, ErrAtCapacity
	}
	o.inflight[runID] = &activeRun{cancel: cancel}
	o.channels[runID] = &channelEntry{ch: ch}
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.opts.Registry.CreateRun(ctx, runID, keywords); err != nil {
		o.mu.Lock()
		delete(o.inflight, runID)
		delete(o.channels, runID)
		o.mu.Unlock()
		cancel()
		o.wg.Done()
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}

	o.logger.Info("monitor started", "run_id", runID, "keyword_count", len(keywords))
	go o.execute(runCtx, runID, append([]string(nil), keywords...), ch)
	return runID, nil
}

// Subscribe attaches the single observer of a run's progress channel.
func (o *Orchestrator) Subscribe(runID uuid.UUID) (*Subscription, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.channels[runID]
	if !ok {
		return nil, ErrNoActiveRun
	}
	if entry.attached {
		return nil, ErrObserverAttached
	}
	entry.attached = true

	return &Subscription{
		RunID:     runID,
		ch:        entry.ch,
		keepalive: o.opts.KeepaliveInterval,
		release:   func() { o.release(runID, entry.ch) },
	}, nil
}

// release drops the run's channel if ch is still the registered one.
func (o *Orchestrator) release(runID uuid.UUID, ch *Channel) {
	o.mu.Lock()
	entry, ok := o.channels[runID]
	if ok && entry.ch == ch {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(o.channels, runID)
	}
	o.mu.Unlock()
	ch.close()
}

// Shutdown cancels in-flight runs and waits for them to record their
// outcome, then releases every progress channel.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.baseCancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	o.mu.Lock()
	entries := o.channels
	o.channels = make(map[uuid.UUID]*channelEntry)
	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	o.mu.Unlock()
	for _, entry := range entries {
		entry.ch.close()
	}
	return err
}

// finish marks the run terminal and starts the grace period after which the
// channel stops accepting observers.
func (o *Orchestrator) finish(runID uuid.UUID, ch *Channel) {
	if n := ch.Dropped(); n > 0 {
		o.logger.Warn("progress messages dropped", "run_id", runID, "dropped", n)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if run, ok := o.inflight[runID]; ok {
		run.cancel()
		delete(o.inflight, runID)
	}
	if entry, ok := o.channels[runID]; ok && entry.ch == ch && !o.closed {
		entry.timer = time.AfterFunc(o.opts.GracePeriod, func() {
			o.release(runID, ch)
		})
	}
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

func (o *Orchestrator) update(ctx context.Context, runID uuid.UUID, update db.RunUpdate) bool {
	sctx, cancel := o.storeContext(ctx)
	defer cancel()

	ok, err := o.opts.Registry.UpdateRun(sctx, runID, update)
	if err != nil {
		o.logger.Error("failed to update run", "run_id", runID, "status", update.Status, "error", err)
		return false
	}
	if !ok {
		o.logger.Warn("run not updated", "run_id", runID, "status", update.Status)
	}
	return ok
}

func (o *Orchestrator) execute(ctx context.Context, runID uuid.UUID, keywords []string, ch *Channel) {
	defer o.wg.Done()
	defer o.finish(runID, ch)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in monitoring run", "run_id", runID, "panic", r)
			if !ch.Terminated() {
				o.fail(ctx, runID, ch, reasonInternal)
			}
		}
	}()

	logger := o.logger.With("run_id", runID)

	o.update(ctx, runID, db.RunUpdate{Status: types.RunStatusRunning})
	ch.Publish(types.StatusMessage("Starting monitoring agent..."))

	captured := newLineRing(o.opts.MaxCapturedLines)
	err := o.opts.Agent.Run(ctx, runID, keywords, func(line string) {
		captured.add(line)
		logger.Debug("agent stdout", "line", line)
		if msg, ok := ParseProgressLine(line); ok {
			ch.Publish(msg)
		}
	})
	if err != nil {
		o.fail(ctx, runID, ch, o.failureReason(logger, err))
		return
	}

	logger.Info("agent exited successfully")
	o.complete(ctx, runID, ch, captured.lines())
}

func (o *Orchestrator) failureReason(logger *slog.Logger, err error) string {
	var exitErr *ExitError
	switch {
	case errors.Is(err, ErrAgentNotFound):
		logger.Error("agent command not found", "error", err)
		return ErrAgentNotFound.Error()
	case errors.As(err, &exitErr):
		logger.Error("agent failed", "exit_code", exitErr.Code, "stderr_tail", exitErr.StderrTail)
		return exitErr.Error()
	case errors.Is(err, ErrAgentTimeout):
		logger.Error("agent timed out", "error", err)
		return err.Error()
	case errors.Is(err, context.Canceled):
		logger.Warn("monitoring run cancelled")
		return reasonCancelled
	default:
		logger.Error("unexpected agent error", "error", err)
		return reasonInternal
	}
}

func (o *Orchestrator) fail(ctx context.Context, runID uuid.UUID, ch *Channel, reason string) {
	o.update(ctx, runID, db.RunUpdate{Status: types.RunStatusFailed, ErrorMessage: &reason})
	ch.Publish(types.ErrorMessage(GenericFailureMessage))
}

func (o *Orchestrator) complete(ctx context.Context, runID uuid.UUID, ch *Channel, lines []string) {
	logger := o.logger.With("run_id", runID)
	ch.Publish(types.StatusMessage("Parsing results and generating report..."))

	raw, found := FindJSONOutput(lines)
	if !found {
		logger.Warn("no JSON payload found in agent output")
		o.update(ctx, runID, db.RunUpdate{Status: types.RunStatusCompleted})
		ch.Publish(types.CompletedMessage(runID, false))
		return
	}

	outputs, err := o.opts.Composer.Compose(ctx, raw)
	if err != nil {
		update := db.RunUpdate{Status: types.RunStatusCompleted, Result: raw}
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			logger.Warn("agent payload failed validation", "error", err)
		} else {
			logger.Error("report generation failed", "error", err)
			reason := reasonReportFailed
			update.ErrorMessage = &reason
		}
		o.update(ctx, runID, update)
		ch.Publish(types.CompletedMessage(runID, false))
		return
	}

	markdown := outputs.Markdown
	stored := o.update(ctx, runID, db.RunUpdate{
		Status:         types.RunStatusCompleted,
		Result:         raw,
		ReportMarkdown: &markdown,
		Stats:          payloadStats(raw),
	})
	ch.Publish(types.CompletedMessage(runID, stored && markdown != ""))
	logger.Info("run completed", "report_path", outputs.ReportPath, "posts", len(outputs.Data.AnalyzedPosts))

	o.notify(ctx, logger, outputs.TelegramSummary)
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, summary string) {
	if o.opts.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := o.opts.Notifier.PublishDigest(nctx, summary); err != nil {
		logger.Warn("failed to deliver notification", "error", err)
	}
}

// payloadStats extracts the raw "stats" member of a payload.
func payloadStats(raw json.RawMessage) json.RawMessage {
	var payload struct {
		Stats json.RawMessage `json:"stats"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Stats) == 0 {
		return nil
	}
	return payload.Stats
}
