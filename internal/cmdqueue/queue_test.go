package cmdqueue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/biolink/internal/cmdqueue"
)

// writeRecorder captures dispatched payloads and their timestamps.
type writeRecorder struct {
	mu       sync.Mutex
	writes   [][]byte
	times    []time.Time
	attempts int
	err      error
}

func (r *writeRecorder) write(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.err != nil {
		return r.err
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.writes = append(r.writes, buf)
	r.times = append(r.times, time.Now())
	return nil
}

func (r *writeRecorder) snapshot() ([][]byte, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	writes := make([][]byte, len(r.writes))
	copy(writes, r.writes)
	times := make([]time.Time, len(r.times))
	copy(times, r.times)
	return writes, times
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestQueue_FIFOWithSpacing(t *testing.T) {
	rec := &writeRecorder{}
	q := cmdqueue.New(rec.write, quietLogger(), cmdqueue.WithSpacing(40*time.Millisecond))
	defer q.Close()

	q.Enqueue(cmdqueue.Command{Payload: []byte{0x01}, Label: "first"})
	q.Enqueue(cmdqueue.Command{Payload: []byte{0x02}, Label: "second"})
	q.Enqueue(cmdqueue.Command{Payload: []byte{0x03}, Label: "third"})
	q.Resume()

	require.Eventually(t, func() bool {
		writes, _ := rec.snapshot()
		return len(writes) == 3
	}, 2*time.Second, 5*time.Millisecond)

	writes, times := rec.snapshot()
	assert.Equal(t, [][]byte{{0x01}, {0x02}, {0x03}}, writes)
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, 35*time.Millisecond, "write %d followed too soon", i)
	}
}

func TestQueue_StartsPaused(t *testing.T) {
	rec := &writeRecorder{}
	q := cmdqueue.New(rec.write, quietLogger(), cmdqueue.WithSpacing(time.Millisecond))
	defer q.Close()

	q.Enqueue(cmdqueue.Command{Payload: []byte{0x01}, Label: "deferred"})

	time.Sleep(50 * time.Millisecond)
	writes, _ := rec.snapshot()
	require.Empty(t, writes, "paused queue must not dispatch")

	q.Resume()
	require.Eventually(t, func() bool {
		writes, _ := rec.snapshot()
		return len(writes) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestQueue_PauseDefersRetainsPending(t *testing.T) {
	rec := &writeRecorder{}
	q := cmdqueue.New(rec.write, quietLogger(), cmdqueue.WithSpacing(time.Millisecond))
	defer q.Close()

	q.Resume()
	q.Enqueue(cmdqueue.Command{Payload: []byte{0x01}, Label: "one"})
	require.Eventually(t, func() bool {
		writes, _ := rec.snapshot()
		return len(writes) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The dispatcher is now idle, blocked waiting for work. A command
	// enqueued after Pause returns must not be written until Resume,
	// even though the dispatcher was already waiting when Pause landed.
	q.Pause()
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(cmdqueue.Command{Payload: []byte{0x02}, Label: "two"})
	time.Sleep(50 * time.Millisecond)
	writes, _ := rec.snapshot()
	require.Len(t, writes, 1, "dispatch must stay deferred while paused")
	assert.Equal(t, 1, q.Len())

	q.Resume()
	require.Eventually(t, func() bool {
		writes, _ := rec.snapshot()
		return len(writes) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestQueue_OverflowDropsOldest(t *testing.T) {
	rec := &writeRecorder{}
	q := cmdqueue.New(rec.write, quietLogger(),
		cmdqueue.WithSpacing(time.Millisecond),
		cmdqueue.WithCapacity(3))
	defer q.Close()

	// Still paused: nothing drains while we overflow the buffer.
	for i := byte(0); i < 5; i++ {
		q.Enqueue(cmdqueue.Command{Payload: []byte{i}, Label: "cmd"})
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, int64(2), q.Dropped())

	q.Resume()
	require.Eventually(t, func() bool {
		writes, _ := rec.snapshot()
		return len(writes) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// The two oldest were discarded; the newest three survive in order.
	writes, _ := rec.snapshot()
	assert.Equal(t, [][]byte{{2}, {3}, {4}}, writes)
}

func TestQueue_FailedWriteDropsWithoutRetry(t *testing.T) {
	rec := &writeRecorder{err: errors.New("gatt write rejected")}
	q := cmdqueue.New(rec.write, quietLogger(), cmdqueue.WithSpacing(time.Millisecond))
	defer q.Close()

	q.Resume()
	q.Enqueue(cmdqueue.Command{Payload: []byte{0x01}, Label: "doomed"})

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.attempts == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Clear the failure; the failed command must not be redelivered.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	q.Enqueue(cmdqueue.Command{Payload: []byte{0x02}, Label: "next"})
	require.Eventually(t, func() bool {
		writes, _ := rec.snapshot()
		return len(writes) == 1
	}, 2*time.Second, 5*time.Millisecond)
	writes, _ := rec.snapshot()
	assert.Equal(t, [][]byte{{0x02}}, writes)
}

func TestQueue_ResetDiscardsPending(t *testing.T) {
	rec := &writeRecorder{}
	q := cmdqueue.New(rec.write, quietLogger(), cmdqueue.WithSpacing(time.Millisecond))
	defer q.Close()

	q.Enqueue(cmdqueue.Command{Payload: []byte{0x01}, Label: "stale"})
	q.Enqueue(cmdqueue.Command{Payload: []byte{0x02}, Label: "stale"})
	require.Equal(t, 2, q.Len())

	q.Reset()
	assert.Equal(t, 0, q.Len())

	q.Resume()
	time.Sleep(50 * time.Millisecond)
	writes, _ := rec.snapshot()
	assert.Empty(t, writes)
}
