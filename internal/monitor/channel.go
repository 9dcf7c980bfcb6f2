package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lzrong0203/memo-run/internal/types"
)

// MaxQueuedMessages bounds a run's backlog while no observer drains it.
const MaxQueuedMessages = 1024

// Channel is a bounded FIFO of progress messages for one run. Publishing
// never blocks; when the queue is full the oldest message is dropped. At
// most one terminal message is ever queued and it is never dropped.
type Channel struct {
	mu       sync.Mutex
	queue    []types.ProgressMessage
	limit    int
	dropped  int
	closed   bool
	terminal bool
	notify   chan struct{}
}

func newChannel() *Channel {
	return newBoundedChannel(MaxQueuedMessages)
}

func newBoundedChannel(limit int) *Channel {
	return &Channel{limit: limit, notify: make(chan struct{}, 1)}
}

// Publish appends msg. Messages published after close or after a terminal
// message are dropped.
func (c *Channel) Publish(msg types.ProgressMessage) {
	c.mu.Lock()
	if c.closed || c.terminal {
		c.mu.Unlock()
		return
	}
	// Nothing follows a terminal message, so the head is never terminal here.
	if c.limit > 0 && len(c.queue) >= c.limit {
		c.queue[0] = types.ProgressMessage{}
		c.queue = c.queue[1:]
		c.dropped++
	}
	c.terminal = msg.IsTerminal()
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
	c.signal()
}

// Dropped returns how many messages were discarded because the queue was full.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Terminated reports whether a terminal message has been published.
func (c *Channel) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

func (c *Channel) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

// pop returns the oldest queued message. ok is false when the queue is
// empty; closed reports whether more messages can still arrive.
func (c *Channel) pop() (msg types.ProgressMessage, ok bool, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 {
		msg = c.queue[0]
		c.queue[0] = types.ProgressMessage{}
		c.queue = c.queue[1:]
		return msg, true, c.closed
	}
	return msg, false, c.closed
}

// Len returns the number of queued messages.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Subscription is the single observer attached to a run's channel.
type Subscription struct {
	RunID     uuid.UUID
	ch        *Channel
	keepalive time.Duration
	release   func()
	once      sync.Once
}

// Next blocks until the next message is available or ctx is done. When no
// message arrives within the keepalive interval it returns a keepalive
// status message instead. Once the channel is released and drained it
// returns ErrChannelClosed.
func (s *Subscription) Next(ctx context.Context) (types.ProgressMessage, error) {
	var timeout <-chan time.Time
	if s.keepalive > 0 {
		timer := time.NewTimer(s.keepalive)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		msg, ok, closed := s.ch.pop()
		if ok {
			return msg, nil
		}
		if closed {
			return types.ProgressMessage{}, ErrChannelClosed
		}

		select {
		case <-s.ch.notify:
		case <-timeout:
			return types.KeepaliveMessage(), nil
		case <-ctx.Done():
			return types.ProgressMessage{}, ctx.Err()
		}
	}
}

// Close detaches the observer and releases the run's channel. A later
// Subscribe for the same run fails with ErrNoActiveRun.
func (s *Subscription) Close() {
	s.once.Do(s.release)
}
