package scan

import "strings"

// serviceNames maps normalized service UUIDs to friendly labels. SIG
// 16-bit identifiers use their short form; vendor services the full
// 128-bit form. Curated to what wearable biosensors actually advertise.
var serviceNames = map[string]string{
	"1809":                             "Health Thermometer",
	"180a":                             "Device Information",
	"180d":                             "Heart Rate",
	"180f":                             "Battery",
	"181b":                             "Body Composition",
	"6e400001b5a3f393e0a9e50e24dcca9e": "Session Service",
}

// ServiceLabel returns a human-readable label for an advertised service
// UUID, falling back to the UUID itself.
func ServiceLabel(uuid string) string {
	key := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	if name, ok := serviceNames[key]; ok {
		return name
	}
	return uuid
}
