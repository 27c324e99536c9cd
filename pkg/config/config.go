// Package config holds application configuration for the biolink session
// layer and CLI.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// UUIDs of the biosensor's session service and its two characteristics
// (command = write, notify = subscribe). Nordic UART layout.
const (
	DefaultServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	DefaultCommandUUID = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"
	DefaultNotifyUUID  = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "200ms" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds application configuration.
type Config struct {
	LogLevel      string `yaml:"log_level" default:"info"`
	DeviceAddress string `yaml:"device_address"`

	ServiceUUID     string `yaml:"service_uuid" default:"6E400001-B5A3-F393-E0A9-E50E24DCCA9E"`
	CommandCharUUID string `yaml:"command_char_uuid" default:"6E400002-B5A3-F393-E0A9-E50E24DCCA9E"`
	NotifyCharUUID  string `yaml:"notify_char_uuid" default:"6E400003-B5A3-F393-E0A9-E50E24DCCA9E"`

	ConnectTimeout      Duration `yaml:"connect_timeout"`
	ScanTimeout         Duration `yaml:"scan_timeout"`
	CommandSpacing      Duration `yaml:"command_spacing"`
	ReconnectDelay      Duration `yaml:"reconnect_delay"`
	ReconnectRetryDelay Duration `yaml:"reconnect_retry_delay"`
	ReconnectMaxRetries int      `yaml:"reconnect_max_retries" default:"3"`
	FallClearWindow     Duration `yaml:"fall_clear_window"`
}

// DefaultConfig returns configuration with all default values applied.
func DefaultConfig() *Config {
	cfg := &Config{
		ConnectTimeout:      Duration(30 * time.Second),
		ScanTimeout:         Duration(10 * time.Second),
		CommandSpacing:      Duration(200 * time.Millisecond),
		ReconnectDelay:      Duration(2 * time.Second),
		ReconnectRetryDelay: Duration(3 * time.Second),
		FallClearWindow:     Duration(time.Second),
	}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a logger configured from LogLevel.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
