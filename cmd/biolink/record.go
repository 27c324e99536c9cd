package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// recordCmd represents the record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record an ECG capture",
	Long: `Connect to the biosensor, arm ECG recording for the given duration
and write the capture as JSON (samples, start time, duration) to stdout
or a file. The capture is an opaque record suitable for external
persistence.`,
	RunE: runRecord,
}

var (
	recordAddress  string
	recordDuration time.Duration
	recordOutput   string
	recordVerbose  bool
)

func init() {
	recordCmd.Flags().StringVarP(&recordAddress, "address", "a", "", "Device address (required unless set in config)")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 30*time.Second, "Recording duration")
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Output file (default stdout)")
	recordCmd.Flags().BoolVar(&recordVerbose, "verbose", false, "Verbose logging")
}

func runRecord(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if recordAddress != "" {
		cfg.DeviceAddress = recordAddress
	}
	if cfg.DeviceAddress == "" {
		return fmt.Errorf("device address is required (--address or config file)")
	}

	sess, err := newSession(cfg, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		_ = sess.Disconnect()
	}()

	sess.StartECGRecording()
	fmt.Fprintf(os.Stderr, "Recording ECG for %s (Ctrl+C to stop early)...\n", recordDuration)

	select {
	case <-ctx.Done():
	case <-time.After(recordDuration):
	}

	capture, err := sess.StopECGRecording()
	if err != nil {
		return err
	}

	out := os.Stdout
	if recordOutput != "" {
		f, err := os.Create(recordOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(capture); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Captured %d samples (%.1f s)\n", len(capture.Samples), capture.DurationSeconds)
	return nil
}
