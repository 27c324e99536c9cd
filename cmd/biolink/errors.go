package main

import (
	"context"
	"errors"

	"github.com/srg/biolink/internal/link"
)

// FormatUserError maps internal errors to readable messages for the
// terminal.
func FormatUserError(err error) string {
	var connErr *link.ConnectionError
	switch {
	case errors.As(err, &connErr):
		switch connErr.State {
		case link.NotConnected:
			return "device is not connected: " + err.Error()
		case link.AlreadyConnected:
			return "a session is already active: " + err.Error()
		case link.ServiceMissing:
			return "device does not expose the expected service: " + err.Error()
		}
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out: " + err.Error()
	}
	return err.Error()
}
