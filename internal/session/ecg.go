package session

import (
	"fmt"
	"sync"
	"time"
)

// DeviceSampleRateHz is the ECG sampling rate of the device firmware.
const DeviceSampleRateHz = 130

// maxRecordingSamples is a defensive cap on one recording's buffer.
// Samples past the cap are dropped (newest-dropped policy) rather than
// crashing the session; at 130 Hz the cap covers over two hours.
const maxRecordingSamples = 1 << 20

// Capture is one finished ECG recording, handed to the caller for
// external persistence as an opaque record.
type Capture struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"timestamp"`
	Samples         []int16   `json:"samples"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// ecgRecorder accumulates decoded ECG samples while armed. No sample is
// dropped while armed (up to the defensive cap); growth is bounded only
// by the recording's own stop call.
type ecgRecorder struct {
	mu        sync.Mutex
	armed     bool
	startedAt time.Time
	samples   []int16
	truncated int64
}

func (r *ecgRecorder) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
	r.startedAt = time.Now()
	r.samples = r.samples[:0]
	r.truncated = 0
}

// append adds decoded samples in arrival order. No-op while disarmed.
func (r *ecgRecorder) append(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed {
		return
	}
	room := maxRecordingSamples - len(r.samples)
	if room <= 0 {
		r.truncated += int64(len(samples))
		return
	}
	if len(samples) > room {
		r.truncated += int64(len(samples) - room)
		samples = samples[:room]
	}
	r.samples = append(r.samples, samples...)
}

// stop disarms and returns the accumulated capture. Returns false if no
// recording was armed.
func (r *ecgRecorder) stop() (Capture, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed {
		return Capture{}, false
	}
	r.armed = false
	out := make([]int16, len(r.samples))
	copy(out, r.samples)
	r.samples = r.samples[:0]
	return Capture{
		ID:              fmt.Sprintf("ecg-%d", r.startedAt.UnixMilli()),
		StartedAt:       r.startedAt,
		Samples:         out,
		DurationSeconds: float64(len(out)) / DeviceSampleRateHz,
	}, true
}

func (r *ecgRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = false
	r.samples = r.samples[:0]
	r.truncated = 0
}

func (r *ecgRecorder) isArmed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}
