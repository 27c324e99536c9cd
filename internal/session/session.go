// Package session implements the device session layer: the connection
// state machine with automatic reconnection, the paced outbound command
// queue, frame decoding fan-out, the activity engine feed, and ECG
// recording. The Session type is the externally observed API.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/biolink/internal/cmdqueue"
	"github.com/srg/biolink/internal/link"
	"github.com/srg/biolink/pkg/activity"
	"github.com/srg/biolink/pkg/sensor"
)

// ErrNoRecording is returned by StopECGRecording when no recording was
// armed.
var ErrNoRecording = errors.New("no ECG recording in progress")

// Session is the externally observed device session: connection status,
// current readings per sensor kind, derived activity metrics, and ECG
// recording control.
//
// The session exclusively owns its connection manager, command queue and
// activity engine; collaborators read through the published accessors
// only.
type Session struct {
	logger *logrus.Logger

	clock   *Clock
	decoder *sensor.Decoder
	engine  *activity.Engine
	queue   *cmdqueue.Queue
	mgr     *manager

	// frameMu serializes notification handling end to end so the decoder
	// and the activity engine never run concurrently on shared state.
	frameMu  sync.Mutex
	statuses *hashmap.Map[sensor.Kind, sensor.Status]

	readMu   sync.RWMutex
	readings *orderedmap.OrderedMap[sensor.Kind, sensor.Reading]

	recorder ecgRecorder

	cbMu      sync.RWMutex
	onReading func(sensor.Reading)
}

// Options configures a Session.
type Options struct {
	CommandSpacing      time.Duration
	QueueCapacity       int
	ReconnectDelay      time.Duration
	ReconnectRetryDelay time.Duration
	ReconnectMaxRetries int
	IntentionalGrace    time.Duration
	FallClearWindow     time.Duration
}

// New creates a Session over the given link capability. Zero option
// fields keep their defaults.
func New(opener link.Opener, logger *logrus.Logger, opts Options) *Session {
	if logger == nil {
		logger = logrus.New()
	}

	s := &Session{
		logger:   logger,
		clock:    NewClock(),
		statuses: hashmap.New[sensor.Kind, sensor.Status](),
		readings: orderedmap.New[sensor.Kind, sensor.Reading](),
	}
	s.decoder = sensor.NewDecoder(s.clock.NowMillis)

	engineOpts := []activity.Option{}
	if opts.FallClearWindow > 0 {
		engineOpts = append(engineOpts, activity.WithFallClearWindow(opts.FallClearWindow))
	}
	s.engine = activity.NewEngine(engineOpts...)

	queueOpts := []cmdqueue.Option{}
	if opts.CommandSpacing > 0 {
		queueOpts = append(queueOpts, cmdqueue.WithSpacing(opts.CommandSpacing))
	}
	if opts.QueueCapacity > 0 {
		queueOpts = append(queueOpts, cmdqueue.WithCapacity(opts.QueueCapacity))
	}
	s.queue = cmdqueue.New(s.writeCommand, logger, queueOpts...)
	s.queue.Pause()

	s.mgr = newManager(opener, logger, hooks{
		onFrame:     s.handleFrame,
		onConnected: s.handleConnected,
		onLinkDown:  s.queue.Pause,
		onReset:     s.resetSessionState,
	})
	if opts.ReconnectDelay > 0 {
		s.mgr.reconnectDelay = opts.ReconnectDelay
	}
	if opts.ReconnectRetryDelay > 0 {
		s.mgr.reconnectRetryDelay = opts.ReconnectRetryDelay
	}
	if opts.ReconnectMaxRetries > 0 {
		s.mgr.reconnectMaxRetries = opts.ReconnectMaxRetries
	}
	if opts.IntentionalGrace > 0 {
		s.mgr.intentionalGrace = opts.IntentionalGrace
	}
	return s
}

// Connect establishes the device session and issues the sensor
// subscription command sequence.
func (s *Session) Connect(ctx context.Context) error {
	s.clock.Restart()
	return s.mgr.Connect(ctx)
}

// Disconnect tears the session down and clears all per-session state.
func (s *Session) Disconnect() error {
	return s.mgr.Disconnect()
}

// Close releases the session's background resources. The session is
// unusable afterwards.
func (s *Session) Close() error {
	err := s.mgr.Disconnect()
	s.queue.Close()
	return err
}

// ConnectionState reports the current lifecycle state.
func (s *Session) ConnectionState() ConnState { return s.mgr.State() }

// LastError reports the most recent transport error, if any.
func (s *Session) LastError() error { return s.mgr.LastError() }

// Status reports the decode health of one sensor stream.
func (s *Session) Status(kind sensor.Kind) sensor.Status {
	if st, ok := s.statuses.Get(kind); ok {
		return st
	}
	return sensor.StatusInactive
}

// Reading returns the most recent reading of a kind, if any.
func (s *Session) Reading(kind sensor.Kind) (sensor.Reading, bool) {
	s.readMu.RLock()
	defer s.readMu.RUnlock()
	return s.readings.Get(kind)
}

// Readings returns the cached readings in first-seen order.
func (s *Session) Readings() []sensor.Reading {
	s.readMu.RLock()
	defer s.readMu.RUnlock()
	out := make([]sensor.Reading, 0, s.readings.Len())
	for pair := s.readings.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Activity returns a snapshot of the derived activity metrics.
func (s *Session) Activity() activity.State { return s.engine.Snapshot() }

// Send enqueues an arbitrary command for paced dispatch.
func (s *Session) Send(cmd cmdqueue.Command) { s.queue.Enqueue(cmd) }

// SetOnReading installs a callback invoked for every decoded reading,
// after caches and derived state have been updated. The callback runs on
// the notification path and must not block.
func (s *Session) SetOnReading(fn func(sensor.Reading)) {
	s.cbMu.Lock()
	s.onReading = fn
	s.cbMu.Unlock()
}

// StartECGRecording clears the sample buffer and arms recording.
func (s *Session) StartECGRecording() {
	s.recorder.start()
	s.logger.Info("ECG recording armed")
}

// StopECGRecording disarms recording and returns the capture. Samples
// decoded after the stop are not included.
func (s *Session) StopECGRecording() (Capture, error) {
	capture, ok := s.recorder.stop()
	if !ok {
		return Capture{}, ErrNoRecording
	}
	s.logger.WithFields(logrus.Fields{
		"samples":  len(capture.Samples),
		"duration": capture.DurationSeconds,
	}).Info("ECG recording stopped")
	return capture, nil
}

// IsRecording reports whether an ECG recording is armed.
func (s *Session) IsRecording() bool { return s.recorder.isArmed() }

// writeCommand is the queue's writer: it routes through whatever link is
// currently held by the manager.
func (s *Session) writeCommand(ctx context.Context, payload []byte) error {
	return s.mgr.Write(ctx, payload)
}

// handleConnected runs after every successful (re)connect: dispatch is
// resumed and the sensor subscription sequence is queued.
func (s *Session) handleConnected() {
	s.queue.Resume()
	for _, cmd := range subscriptionSequence() {
		s.queue.Enqueue(cmd)
	}
}

// handleFrame is the single inbound path for notification frames.
func (s *Session) handleFrame(frame []byte) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	readings, err := s.decoder.Decode(frame)
	if err != nil {
		var decErr *sensor.DecodeError
		if errors.As(err, &decErr) {
			// A decode failure is local to one sensor kind and never
			// cascades: only that kind's status flips to Error, the
			// cached reading stays untouched.
			s.statuses.Set(decErr.Kind, sensor.StatusError)
			s.logger.WithFields(logrus.Fields{
				"kind":  decErr.Kind.String(),
				"error": err,
			}).Debug("Frame decode failed")
		}
		return
	}

	for _, r := range readings {
		s.publish(r)
	}
}

// publish updates the status and reading caches and fans the reading out
// to the activity engine, the ECG recorder and the reading callback.
// Synthetic placeholders update the caches (they mark the stream alive)
// but are excluded from derived metrics and recordings.
func (s *Session) publish(r sensor.Reading) {
	s.statuses.Set(r.Kind, sensor.StatusActive)

	s.readMu.Lock()
	s.readings.Set(r.Kind, r)
	s.readMu.Unlock()

	if r.Origin == sensor.Measured {
		switch r.Kind {
		case sensor.Accelerometer:
			for _, sample := range r.Samples {
				s.engine.ProcessAccelSample(sample.X, sample.Y, sample.Z)
			}
		case sensor.HeartRate:
			s.engine.UpdateCalories(r.BPM)
		case sensor.ECG:
			s.recorder.append(r.ECGSamples)
		}
	}

	s.cbMu.RLock()
	fn := s.onReading
	s.cbMu.RUnlock()
	if fn != nil {
		fn(r)
	}
}

// resetSessionState clears everything scoped to one session: cached
// readings, statuses, queued commands, decoder latches, derived metrics
// and any armed recording.
func (s *Session) resetSessionState() {
	s.queue.Pause()
	s.queue.Reset()

	s.frameMu.Lock()
	s.decoder.Reset()
	s.frameMu.Unlock()

	s.statuses.Range(func(k sensor.Kind, _ sensor.Status) bool {
		s.statuses.Del(k)
		return true
	})

	s.readMu.Lock()
	s.readings = orderedmap.New[sensor.Kind, sensor.Reading]()
	s.readMu.Unlock()

	s.engine.Reset()
	s.recorder.reset()
}
