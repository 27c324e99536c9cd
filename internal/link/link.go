// Package link abstracts the short-range wireless transport the session
// layer runs over. The session treats the transport as an injected
// capability: open a link, write command bytes, receive notification
// frames, observe disconnection. The only production implementation is
// BLE, but tests substitute in-memory links freely.
package link

import (
	"context"
	"fmt"
)

// Link is one live transport connection to the device.
type Link interface {
	// Write sends one encoded command payload to the device.
	Write(ctx context.Context, payload []byte) error
	// Subscribe arms notification delivery. onFrame is invoked with each
	// raw notification payload exactly as received.
	Subscribe(onFrame func(frame []byte)) error
	// Disconnected is closed when the link drops, whether or not the
	// drop was requested locally.
	Disconnected() <-chan struct{}
	// Close tears the link down.
	Close() error
}

// Opener establishes links. Discovery, pairing and service resolution
// happen inside Open; the caller must tolerate indefinite latency up to
// the context deadline.
type Opener interface {
	Open(ctx context.Context) (Link, error)
}

// State is the specific kind of connection-state failure.
type State string

const (
	NotConnected     State = "not_connected"
	AlreadyConnected State = "already_connected"
	ServiceMissing   State = "service_missing"
)

// ConnectionError represents any transport-level problem.
type ConnectionError struct {
	State State
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return t.Msg == "" && t.State == e.State
}
