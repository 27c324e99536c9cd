package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/spf13/cobra"

	"github.com/srg/biolink/internal/scan"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for biosensor devices",
	Long: `Scan for Bluetooth Low Energy devices in the vicinity and display
their names, addresses, RSSI values, and advertised services.

By default every advertiser is listed; --service restricts the scan to
devices advertising the biosensor session service.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanServices  []string
	scanAllowList []string
	scanVerbose   bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "service", "s", nil, "Filter by advertised service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only include these device addresses")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Verbose logging")
}

func runScan(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	var serviceUUIDs []blelib.UUID
	for _, s := range scanServices {
		uuid, err := blelib.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid service UUID %q: %w", s, err)
		}
		serviceUUIDs = append(serviceUUIDs, uuid)
	}

	scanner := scan.NewScanner(logger)
	devices, err := scanner.Scan(cmd.Context(), &scan.Options{
		Duration:        scanDuration,
		DuplicateFilter: true,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       scanAllowList,
	})
	if err != nil {
		return err
	}

	switch scanFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tSERVICES")
		for _, d := range devices {
			labels := make([]string, len(d.Services))
			for i, svc := range d.Services {
				labels[i] = scan.ServiceLabel(svc)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Address, d.DisplayName(), d.RSSI, strings.Join(labels, ","))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format: %s (must be table or json)", scanFormat)
	}
}
