package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrAtCapacity is returned by Start when MaxConcurrentRuns runs are in flight.
	ErrAtCapacity = errors.New("too many concurrent runs")
	// ErrNoActiveRun is returned by Subscribe when the run has no attachable progress channel.
	ErrNoActiveRun = errors.New("no active monitor for this run")
	// ErrObserverAttached is returned by Subscribe when another observer holds the channel.
	ErrObserverAttached = errors.New("an observer is already attached to this run")
	// ErrShuttingDown is returned by Start after Shutdown.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
	// ErrChannelClosed is returned by Subscription.Next once the channel is released and drained.
	ErrChannelClosed = errors.New("progress channel closed")

	// ErrAgentNotFound means the agent binary could not be resolved.
	ErrAgentNotFound = errors.New("agent command not found")
	// ErrAgentTimeout means the agent was killed after exceeding its time limit.
	ErrAgentTimeout = errors.New("agent timed out")
)

// ExitError reports a non-zero agent exit. StderrTail is for logs only.
type ExitError struct {
	Code       int
	StderrTail []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("agent exited with code %d", e.Code)
}
