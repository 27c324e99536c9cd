// Package scan implements BLE discovery for the biosensor: a bounded
// scan that collects advertising devices, optionally filtered to the
// biosensor's session service.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/biolink/internal/link"
)

// Device is one discovered advertiser.
type Device struct {
	Address     string
	Name        string
	RSSI        int
	Connectable bool
	Services    []string
	LastSeen    time.Time
}

// DisplayName returns the advertised name or a placeholder.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return "(unknown)"
}

// Options configures scanning behavior.
type Options struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []blelib.UUID
	AllowList       []string
}

// DefaultOptions returns default scanning options.
func DefaultOptions() *Options {
	return &Options{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery.
type Scanner struct {
	devices *hashmap.Map[string, Device]
	logger  *logrus.Logger
	opts    *Options
}

// NewScanner creates a new BLE scanner.
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{logger: logger}
}

// Scan performs BLE discovery with the provided options and returns the
// discovered devices sorted by address.
func (s *Scanner) Scan(ctx context.Context, opts *Options) ([]Device, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	s.opts = opts
	s.devices = hashmap.New[string, Device]()

	dev, err := link.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	err = dev.Scan(scanCtx, opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	result := make([]Device, 0, s.devices.Len())
	s.devices.Range(func(_ string, d Device) bool {
		result = append(result, d)
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

// handleAdvertisement updates an existing entry or adds a new device.
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	addr := adv.Addr().String()
	if !s.shouldInclude(adv) {
		return
	}

	services := make([]string, 0, len(adv.Services()))
	for _, uuid := range adv.Services() {
		services = append(services, uuid.String())
	}

	d := Device{
		Address:     addr,
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		Services:    services,
		LastSeen:    time.Now(),
	}

	if _, existing := s.devices.Get(addr); !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  d.DisplayName(),
			"address": addr,
			"rssi":    d.RSSI,
		}).Info("Discovered new device")
	}
	s.devices.Set(addr, d)
}

// shouldInclude applies the allow-list and service filters.
func (s *Scanner) shouldInclude(adv blelib.Advertisement) bool {
	addr := adv.Addr().String()

	if len(s.opts.AllowList) > 0 {
		allowed := false
		for _, a := range s.opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(s.opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range s.opts.ServiceUUIDs {
			for _, advUUID := range adv.Services() {
				if required.Equal(advUUID) {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}
