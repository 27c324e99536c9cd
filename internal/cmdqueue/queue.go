// Package cmdqueue serializes outbound device commands: FIFO dispatch,
// a minimum spacing between consecutive writes, and deferral while the
// link is down. The device firmware drops commands written back-to-back,
// so pacing is enforced here rather than at each call site.
package cmdqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/biolink/internal/groutine"
)

// DefaultSpacing is the minimum delay between consecutive writes.
const DefaultSpacing = 200 * time.Millisecond

// DefaultCapacity bounds the pending buffer. Overflow drops the oldest
// pending command; steady-state sessions never come close to the cap.
const DefaultCapacity = 64

// Command is one outbound request. Immutable once enqueued.
type Command struct {
	Payload []byte
	Label   string
}

// WriteFunc delivers one encoded command to the device. A failed write
// drops the command; the queue does not retry.
type WriteFunc func(ctx context.Context, payload []byte) error

// Queue holds pending outbound commands and dispatches them through a
// single goroutine. Enqueue never blocks.
//
// The pause check and the dequeue share one critical section: a command
// enqueued after Pause returns cannot be dispatched before the matching
// Resume.
type Queue struct {
	write    WriteFunc
	spacing  time.Duration
	logger   *logrus.Logger
	capacity int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Command
	paused  bool
	closed  bool

	dropped atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithSpacing overrides the minimum inter-command spacing.
func WithSpacing(d time.Duration) Option {
	return func(q *Queue) { q.spacing = d }
}

// WithCapacity overrides the pending-buffer cap.
func WithCapacity(n int) Option {
	return func(q *Queue) { q.capacity = n }
}

// New creates a Queue dispatching through write. The queue starts paused;
// call Resume once the link is up.
func New(write WriteFunc, logger *logrus.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		write:    write,
		spacing:  DefaultSpacing,
		logger:   logger,
		capacity: DefaultCapacity,
		paused:   true,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	groutine.Go(ctx, "cmdqueue-dispatch", q.run)
	return q
}

// Enqueue accepts a command for dispatch. If the buffer is full the
// oldest pending command is discarded.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}
	if len(q.pending) >= q.capacity {
		old := q.pending[0]
		q.pending = q.pending[1:]
		q.dropped.Add(1)
		q.logger.WithField("command", old.Label).Warn("Command queue full, dropping oldest")
	}
	q.pending = append(q.pending, cmd)
	q.cond.Signal()
}

// Pause defers dispatch until Resume. Pending commands are retained.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume re-enables dispatch after the link comes back.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.cond.Signal()
	q.mu.Unlock()
}

// Reset discards all pending commands, leaving the pause state intact.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}

// Len reports the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped reports how many commands were discarded due to overflow.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close stops the dispatcher. In-flight dispatch is abandoned without
// error; pending commands are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.cancel()
	<-q.done
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		cmd, ok := q.next()
		if !ok {
			return
		}
		if err := q.write(ctx, cmd.Payload); err != nil {
			q.logger.WithFields(logrus.Fields{
				"command": cmd.Label,
				"error":   err,
			}).Warn("Command write failed, dropping")
		} else {
			q.logger.WithField("command", cmd.Label).Debug("Command dispatched")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.spacing):
		}
	}
}

// next blocks until a command is dispatchable: queue running and buffer
// non-empty. Returns false when the queue is closed.
func (q *Queue) next() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return Command{}, false
		}
		if !q.paused && len(q.pending) > 0 {
			cmd := q.pending[0]
			q.pending = q.pending[1:]
			return cmd, true
		}
		q.cond.Wait()
	}
}
