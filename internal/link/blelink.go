package link

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// BLEOptions configures a BLEOpener.
type BLEOptions struct {
	DeviceAddress  string
	ConnectTimeout time.Duration
	ServiceUUID    ble.UUID // device session service
	CommandUUID    ble.UUID // write characteristic
	NotifyUUID     ble.UUID // notify characteristic
}

// BLEOpener opens BLE links to the biosensor: dial, profile discovery,
// command/notify characteristic resolution.
type BLEOpener struct {
	opts   BLEOptions
	logger *logrus.Logger
}

// NewBLEOpener creates a BLEOpener. A nil logger falls back to a default.
func NewBLEOpener(opts BLEOptions, logger *logrus.Logger) *BLEOpener {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEOpener{opts: opts, logger: logger}
}

// Open dials the device and resolves the session service characteristics.
func (o *BLEOpener) Open(ctx context.Context) (Link, error) {
	if strings.TrimSpace(o.opts.DeviceAddress) == "" {
		return nil, &ConnectionError{State: NotConnected, Msg: "device address is not set"}
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	o.logger.WithField("address", o.opts.DeviceAddress).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, o.opts.ConnectTimeout)
	defer cancel()

	client, err := ble.Dial(connCtx, ble.NewAddr(o.opts.DeviceAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", o.opts.DeviceAddress, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			o.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	var service *ble.Service
	for _, svc := range profile.Services {
		if svc.UUID.Equal(o.opts.ServiceUUID) {
			service = svc
			break
		}
	}
	if service == nil {
		_ = client.CancelConnection()
		return nil, &ConnectionError{State: ServiceMissing, Msg: fmt.Sprintf("service %s not found", o.opts.ServiceUUID)}
	}

	l := &bleLink{client: client, logger: o.logger, dropped: make(chan struct{})}
	for _, char := range service.Characteristics {
		switch {
		case char.UUID.Equal(o.opts.CommandUUID):
			l.commandChar = char
		case char.UUID.Equal(o.opts.NotifyUUID):
			l.notifyChar = char
		}
	}
	if l.commandChar == nil {
		_ = client.CancelConnection()
		return nil, &ConnectionError{State: ServiceMissing, Msg: fmt.Sprintf("command characteristic %s not found", o.opts.CommandUUID)}
	}
	if l.notifyChar == nil {
		_ = client.CancelConnection()
		return nil, &ConnectionError{State: ServiceMissing, Msg: fmt.Sprintf("notify characteristic %s not found", o.opts.NotifyUUID)}
	}

	// go-ble exposes a disconnect channel on Darwin clients only;
	// elsewhere the drop channel fires on Close.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		go func() {
			select {
			case <-dc.Disconnected():
				l.markDropped()
			case <-l.dropped:
			}
		}()
	}

	o.logger.WithFields(logrus.Fields{
		"address": o.opts.DeviceAddress,
		"service": o.opts.ServiceUUID.String(),
	}).Info("BLE link established")
	return l, nil
}

type bleLink struct {
	client      ble.Client
	logger      *logrus.Logger
	commandChar *ble.Characteristic
	notifyChar  *ble.Characteristic

	writeMutex sync.Mutex
	dropOnce   sync.Once
	dropped    chan struct{}
}

func (l *bleLink) Write(ctx context.Context, payload []byte) error {
	select {
	case <-l.dropped:
		return &ConnectionError{State: NotConnected, Msg: "link is down"}
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	if err := l.client.WriteCharacteristic(l.commandChar, payload, false); err != nil {
		return fmt.Errorf("failed to write command characteristic: %w", err)
	}
	l.logger.WithField("bytes", len(payload)).Debug("Wrote command to device")
	return nil
}

func (l *bleLink) Subscribe(onFrame func(frame []byte)) error {
	if err := l.client.Subscribe(l.notifyChar, false, func(data []byte) {
		// go-ble reuses the notification buffer between callbacks.
		frame := make([]byte, len(data))
		copy(frame, data)
		onFrame(frame)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to notify characteristic: %w", err)
	}
	l.logger.WithField("uuid", l.notifyChar.UUID.String()).Info("Subscribed to notifications")
	return nil
}

func (l *bleLink) Disconnected() <-chan struct{} {
	return l.dropped
}

func (l *bleLink) Close() error {
	var err error
	l.dropOnce.Do(func() {
		err = l.client.CancelConnection()
		close(l.dropped)
	})
	return err
}

func (l *bleLink) markDropped() {
	l.dropOnce.Do(func() {
		close(l.dropped)
	})
}
