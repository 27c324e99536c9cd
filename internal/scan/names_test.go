package scan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/biolink/internal/scan"
)

func TestServiceLabel(t *testing.T) {
	assert.Equal(t, "Heart Rate", scan.ServiceLabel("180d"))
	assert.Equal(t, "Heart Rate", scan.ServiceLabel("180D"))
	assert.Equal(t, "Session Service", scan.ServiceLabel("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.Equal(t, "fff0", scan.ServiceLabel("fff0"), "unknown UUIDs pass through")
}

func TestDeviceDisplayName(t *testing.T) {
	assert.Equal(t, "BioSense-01", scan.Device{Name: "BioSense-01"}.DisplayName())
	assert.Equal(t, "(unknown)", scan.Device{}.DisplayName())
}
