package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/biolink/internal/groutine"
	"github.com/srg/biolink/internal/link"
)

// ConnState is the connection lifecycle state of a session.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Reconnection defaults. The first retry waits a little longer than a
// typical supervisor-initiated drop; subsequent retries back off further.
const (
	DefaultReconnectDelay      = 2 * time.Second
	DefaultReconnectRetryDelay = 3 * time.Second
	DefaultReconnectMaxRetries = 3
	DefaultIntentionalGrace    = 500 * time.Millisecond
)

// hooks are the manager's callbacks into the owning session. All hooks
// may be invoked from the manager's monitor goroutine.
type hooks struct {
	onFrame     func(frame []byte)
	onConnected func()
	onLinkDown  func()
	onReset     func()
}

// manager owns the link lifecycle: connect, subscribe, disconnect, and
// automatic reconnection with bounded retries.
//
// The underlying transport reports disconnection asynchronously and
// identically for user-initiated and link-failure drops; the intentional
// flag, cleared only after a grace period, is what suppresses spurious
// reconnection after a deliberate disconnect.
type manager struct {
	opener link.Opener
	logger *logrus.Logger
	hooks  hooks

	reconnectDelay      time.Duration
	reconnectRetryDelay time.Duration
	reconnectMaxRetries int
	intentionalGrace    time.Duration

	mu          sync.Mutex
	state       ConnState
	lastErr     error
	lnk         link.Link
	intentional bool
	graceTimer  *time.Timer
	sessCancel  context.CancelFunc
}

func newManager(opener link.Opener, logger *logrus.Logger, h hooks) *manager {
	return &manager{
		opener:              opener,
		logger:              logger,
		hooks:               h,
		reconnectDelay:      DefaultReconnectDelay,
		reconnectRetryDelay: DefaultReconnectRetryDelay,
		reconnectMaxRetries: DefaultReconnectMaxRetries,
		intentionalGrace:    DefaultIntentionalGrace,
	}
}

// Connect transitions Disconnected -> Connecting -> Connected: opens the
// link, arms notification delivery, then hands control to the session's
// onConnected hook (which issues the sensor subscription sequence).
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		state := m.state
		m.mu.Unlock()
		return &link.ConnectionError{State: link.AlreadyConnected, Msg: fmt.Sprintf("session is %s", state)}
	}
	m.state = StateConnecting
	// A reconnect inside the previous disconnect's grace window must not
	// inherit the intentional flag, or a drop of the new link would be
	// swallowed.
	m.intentional = false
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.mu.Unlock()

	lnk, err := m.openAndArm(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.lastErr = err
		m.mu.Unlock()
		return err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.lnk = lnk
	m.sessCancel = cancel
	m.state = StateConnected
	m.lastErr = nil
	m.mu.Unlock()

	groutine.Go(sessCtx, "session-link-monitor", func(c context.Context) {
		m.watch(c, lnk)
	})
	m.hooks.onConnected()
	return nil
}

// openAndArm opens a link and subscribes the frame handler.
func (m *manager) openAndArm(ctx context.Context) (link.Link, error) {
	lnk, err := m.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open link: %w", err)
	}
	if err := lnk.Subscribe(m.hooks.onFrame); err != nil {
		_ = lnk.Close()
		return nil, fmt.Errorf("failed to arm notifications: %w", err)
	}
	return lnk, nil
}

// watch waits for the link to drop. An unintentional drop while Connected
// enters the reconnect loop; an intentional one is handled by Disconnect.
func (m *manager) watch(ctx context.Context, lnk link.Link) {
	select {
	case <-ctx.Done():
		return
	case <-lnk.Disconnected():
	}

	m.mu.Lock()
	intentional := m.intentional
	m.mu.Unlock()
	if intentional {
		return
	}

	m.logger.Warn("Link dropped unexpectedly")
	m.reconnectLoop(ctx)
}

// reconnectLoop retries the connection with bounded attempts. Exhausting
// the retries tears the session down to Disconnected.
func (m *manager) reconnectLoop(ctx context.Context) {
	m.setState(StateReconnecting)
	m.hooks.onLinkDown()

	for attempt := 1; attempt <= m.reconnectMaxRetries; attempt++ {
		delay := m.reconnectDelay
		if attempt > 1 {
			delay = m.reconnectRetryDelay
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		m.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     m.reconnectMaxRetries,
		}).Info("Attempting reconnect...")

		lnk, err := m.openAndArm(ctx)
		if err != nil {
			m.mu.Lock()
			m.lastErr = err
			m.mu.Unlock()
			m.logger.WithField("error", err).Warn("Reconnect attempt failed")
			continue
		}

		m.mu.Lock()
		m.lnk = lnk
		m.state = StateConnected
		m.lastErr = nil
		m.mu.Unlock()

		groutine.Go(ctx, "session-link-monitor", func(c context.Context) {
			m.watch(c, lnk)
		})
		m.logger.Info("Reconnected")
		m.hooks.onConnected()
		return
	}

	m.logger.Warn("Reconnect attempts exhausted, tearing session down")
	m.teardown()
}

// Disconnect sets the intentional flag, closes the link and resets all
// per-session state. The flag is cleared after a short grace period to
// avoid racing the transport's asynchronous drop notification.
func (m *manager) Disconnect() error {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.intentional = true
	if m.graceTimer != nil {
		m.graceTimer.Stop()
	}
	m.mu.Unlock()

	m.teardown()

	m.mu.Lock()
	m.graceTimer = time.AfterFunc(m.intentionalGrace, func() {
		m.mu.Lock()
		m.intentional = false
		m.graceTimer = nil
		m.mu.Unlock()
	})
	m.mu.Unlock()
	return nil
}

// teardown transitions to Disconnected, cancels all pending timers and
// monitors, closes the link and triggers the session reset hook.
func (m *manager) teardown() {
	m.mu.Lock()
	lnk := m.lnk
	cancel := m.sessCancel
	m.lnk = nil
	m.sessCancel = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if lnk != nil {
		if err := lnk.Close(); err != nil {
			m.logger.WithField("error", err).Debug("Link close reported error")
		}
	}
	m.hooks.onReset()
}

// Write delivers one command payload over the current link.
func (m *manager) Write(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	lnk := m.lnk
	m.mu.Unlock()
	if lnk == nil {
		return &link.ConnectionError{State: link.NotConnected}
	}
	return lnk.Write(ctx, payload)
}

func (m *manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *manager) setState(s ConnState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
