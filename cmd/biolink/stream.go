package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	blelib "github.com/go-ble/ble"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/biolink/internal/link"
	"github.com/srg/biolink/internal/session"
	"github.com/srg/biolink/pkg/config"
	"github.com/srg/biolink/pkg/sensor"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream live sensor readings",
	Long: `Connect to the biosensor and print decoded readings and derived
activity metrics until interrupted.

Synthetic placeholder readings (status/handshake frames, not measured
data) are rendered dimmed.`,
	RunE: runStream,
}

var (
	streamAddress  string
	streamVerbose  bool
	streamInterval time.Duration
)

func init() {
	streamCmd.Flags().StringVarP(&streamAddress, "address", "a", "", "Device address (required unless set in config)")
	streamCmd.Flags().BoolVar(&streamVerbose, "verbose", false, "Verbose logging")
	streamCmd.Flags().DurationVar(&streamInterval, "interval", 500*time.Millisecond, "Render interval")
}

// loadConfig reads the --config file when given, otherwise defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// newSession wires a BLE-backed session from configuration.
func newSession(cfg *config.Config, cmd *cobra.Command) (*session.Session, error) {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return nil, err
	}

	serviceUUID, err := blelib.Parse(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", cfg.ServiceUUID, err)
	}
	commandUUID, err := blelib.Parse(cfg.CommandCharUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid command characteristic UUID %q: %w", cfg.CommandCharUUID, err)
	}
	notifyUUID, err := blelib.Parse(cfg.NotifyCharUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid notify characteristic UUID %q: %w", cfg.NotifyCharUUID, err)
	}

	opener := link.NewBLEOpener(link.BLEOptions{
		DeviceAddress:  cfg.DeviceAddress,
		ConnectTimeout: cfg.ConnectTimeout.Std(),
		ServiceUUID:    serviceUUID,
		CommandUUID:    commandUUID,
		NotifyUUID:     notifyUUID,
	}, logger)

	return session.New(opener, logger, session.Options{
		CommandSpacing:      cfg.CommandSpacing.Std(),
		ReconnectDelay:      cfg.ReconnectDelay.Std(),
		ReconnectRetryDelay: cfg.ReconnectRetryDelay.Std(),
		ReconnectMaxRetries: cfg.ReconnectMaxRetries,
		FallClearWindow:     cfg.FallClearWindow.Std(),
	}), nil
}

func runStream(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if streamAddress != "" {
		cfg.DeviceAddress = streamAddress
	}
	if cfg.DeviceAddress == "" {
		return fmt.Errorf("device address is required (--address or config file)")
	}

	sess, err := newSession(cfg, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Readings flow through a collector ring so terminal rendering can
	// never back-pressure the notification path.
	readingCh := make(chan sensor.Reading, 64)
	sess.SetOnReading(func(r sensor.Reading) {
		select {
		case readingCh <- r:
		default:
		}
	})
	collector, err := session.NewCollector(readingCh, 256)
	if err != nil {
		return err
	}
	if err := collector.Start(); err != nil {
		return err
	}
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sess.Disconnect(); err != nil {
			fmt.Fprintf(os.Stderr, "disconnect: %v\n", err)
		}
	}()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, r := range collector.Drain() {
				printReading(r)
			}
			printActivity(sess)
		}
	}
}

var (
	kindColor = map[sensor.Kind]*color.Color{
		sensor.Temperature:   color.New(color.FgYellow),
		sensor.Accelerometer: color.New(color.FgCyan),
		sensor.HeartRate:     color.New(color.FgRed),
		sensor.ECG:           color.New(color.FgMagenta),
		sensor.Gyroscope:     color.New(color.FgGreen),
		sensor.Magnetometer:  color.New(color.FgBlue),
	}
	dimColor = color.New(color.Faint)
)

func printReading(r sensor.Reading) {
	c, ok := kindColor[r.Kind]
	if !ok {
		c = color.New(color.Reset)
	}
	if r.Origin == sensor.Synthetic {
		c = dimColor
	}

	switch r.Kind {
	case sensor.Temperature:
		c.Printf("[%8dms] %-13s %.1f °C (%s)\n", r.CapturedAt, r.Kind, r.Celsius, r.Origin)
	case sensor.HeartRate:
		c.Printf("[%8dms] %-13s %d bpm (%s)\n", r.CapturedAt, r.Kind, r.BPM, r.Origin)
	case sensor.ECG:
		c.Printf("[%8dms] %-13s %d samples (%s)\n", r.CapturedAt, r.Kind, len(r.ECGSamples), r.Origin)
	case sensor.Accelerometer:
		s := r.Samples[0]
		c.Printf("[%8dms] %-13s x=%.3f y=%.3f z=%.3f |a|=%.3f g (%s)\n", r.CapturedAt, r.Kind, s.X, s.Y, s.Z, r.Magnitude, r.Origin)
	default:
		s := r.Samples[0]
		c.Printf("[%8dms] %-13s x=%.2f y=%.2f z=%.2f (%s)\n", r.CapturedAt, r.Kind, s.X, s.Y, s.Z, r.Origin)
	}
}

func printActivity(sess *session.Session) {
	st := sess.Activity()
	line := fmt.Sprintf("-- steps=%d dist=%.1fm posture=%s dribbles=%d kcal=%.1f",
		st.Steps, st.DistanceMeters, st.Posture, st.DribbleCount, st.CaloriesBurned)
	if st.FallDetected {
		line += "  FALL DETECTED"
		color.New(color.FgRed, color.Bold).Println(line)
		return
	}
	dimColor.Println(line)
}
