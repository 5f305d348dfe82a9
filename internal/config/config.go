// Package config loads and validates this driver's YAML configuration,
// mirroring the layout and defaulting conventions the rest of the corpus
// uses for its own config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level driver configuration.
type Config struct {
	Serial struct {
		Port           string `yaml:"port"`
		Baud           int    `yaml:"baud"`
		SkipBootloader bool   `yaml:"skip_bootloader"`
	} `yaml:"serial"`

	Network struct {
		Channel       uint8  `yaml:"channel"`
		PanID         uint16 `yaml:"pan_id"`
		ExtPanID      string `yaml:"extended_pan_id"`
		NetworkKeyHex string `yaml:"network_key"`
	} `yaml:"network"`

	Bus struct {
		RequestTimeout   string `yaml:"request_timeout"`
		WatchdogInterval string `yaml:"watchdog_interval"`
		MaxConcurrentReq int    `yaml:"max_concurrent_requests"`
	} `yaml:"bus"`

	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads and parses the YAML config file at path, applying the same
// defaults a caller would otherwise have to duplicate everywhere.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 115200
	}
	if c.Bus.RequestTimeout == "" {
		c.Bus.RequestTimeout = "6s"
	}
	if c.Bus.WatchdogInterval == "" {
		c.Bus.WatchdogInterval = "15s"
	}
	if c.Bus.MaxConcurrentReq == 0 {
		c.Bus.MaxConcurrentReq = 8
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "tizigbee.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the fields Load cannot sensibly default.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("config: serial.port is required")
	}
	if c.Network.Channel < 11 || c.Network.Channel > 26 {
		return fmt.Errorf("config: network.channel must be 11-26, got %d", c.Network.Channel)
	}
	if c.Network.PanID == 0x0000 || c.Network.PanID == 0xFFFF {
		return fmt.Errorf("config: network.pan_id must not be 0x0000 or 0xFFFF")
	}
	if _, err := c.RequestTimeout(); err != nil {
		return fmt.Errorf("config: bus.request_timeout: %w", err)
	}
	if _, err := c.WatchdogInterval(); err != nil {
		return fmt.Errorf("config: bus.watchdog_interval: %w", err)
	}
	return nil
}

// RequestTimeout parses Bus.RequestTimeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Bus.RequestTimeout)
}

// WatchdogInterval parses Bus.WatchdogInterval.
func (c *Config) WatchdogInterval() (time.Duration, error) {
	return time.ParseDuration(c.Bus.WatchdogInterval)
}

// ChannelMask converts the single configured channel into the u32 bitmask
// APPConfig.BDBSetChannel expects.
func (c *Config) ChannelMask() uint32 {
	return 1 << uint32(c.Network.Channel)
}

// NewLogger builds the slog.Logger the rest of the driver is injected with,
// per the configured level and format.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(c.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
