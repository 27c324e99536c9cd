package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/srg/biolink/internal/groutine"
	"github.com/srg/biolink/pkg/sensor"
)

// CollectorMetrics provides lock-free counters for a Collector.
type CollectorMetrics struct {
	Collected   int64 // readings moved into the ring
	Overwritten int64 // readings lost to ring overflow
}

// maxCollectorBuffer guards against accidental misconfiguration.
const maxCollectorBuffer uint32 = 1 << 16

// Collector gathers published readings from the session's notification
// path into a ring buffer so a slow consumer (a terminal renderer, a
// recording sink) can drain at its own pace. Bursting past the buffer
// size overwrites the oldest readings rather than back-pressuring the
// notification path.
type Collector struct {
	in      <-chan sensor.Reading
	buffer  mpmc.RichOverlappedRingBuffer[sensor.Reading]
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool

	collected   atomic.Int64
	overwritten atomic.Int64
}

// NewCollector creates a Collector draining ch into a ring of bufferSize
// readings.
func NewCollector(ch <-chan sensor.Reading, bufferSize uint32) (*Collector, error) {
	if ch == nil {
		return nil, fmt.Errorf("reading channel cannot be nil")
	}
	if bufferSize == 0 || bufferSize > maxCollectorBuffer {
		return nil, fmt.Errorf("buffer size must be in 1..%d, got %d", maxCollectorBuffer, bufferSize)
	}
	return &Collector{
		in:     ch,
		buffer: mpmc.NewOverlappedRingBuffer[sensor.Reading](bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start begins collecting. Returns an error if already running.
func (c *Collector) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("collector is already running")
	}
	groutine.Go(context.Background(), "reading-collector", func(context.Context) {
		defer close(c.done)
		for {
			select {
			case <-c.stop:
				return
			case r, ok := <-c.in:
				if !ok {
					return
				}
				overwrites, err := c.buffer.EnqueueM(r)
				if err != nil {
					// Overlapped ring never rejects; treat as lost.
					c.overwritten.Add(1)
					continue
				}
				c.collected.Add(1)
				c.overwritten.Add(int64(overwrites))
			}
		}
	})
	return nil
}

// Stop halts collection. Already-buffered readings remain drainable.
func (c *Collector) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stop)
	<-c.done
}

// Drain removes and returns all currently buffered readings in order.
func (c *Collector) Drain() []sensor.Reading {
	var out []sensor.Reading
	for !c.buffer.IsEmpty() {
		r, err := c.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, r)
	}
	return out
}

// Metrics returns a snapshot of the collector counters.
func (c *Collector) Metrics() CollectorMetrics {
	return CollectorMetrics{
		Collected:   c.collected.Load(),
		Overwritten: c.overwritten.Load(),
	}
}
