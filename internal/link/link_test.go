package link_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/biolink/internal/link"
)

func TestConnectionError_Is(t *testing.T) {
	err := fmt.Errorf("write failed: %w", &link.ConnectionError{
		State: link.NotConnected,
		Msg:   "link is down",
	})

	assert.True(t, errors.Is(err, &link.ConnectionError{State: link.NotConnected}))
	assert.False(t, errors.Is(err, &link.ConnectionError{State: link.ServiceMissing}))

	var connErr *link.ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.Equal(t, link.NotConnected, connErr.State)
}

func TestConnectionError_Error(t *testing.T) {
	assert.Equal(t, "not_connected", (&link.ConnectionError{State: link.NotConnected}).Error())
	assert.Equal(t, "service_missing: no session service on device",
		(&link.ConnectionError{State: link.ServiceMissing, Msg: "no session service on device"}).Error())
}
