// Package model also defines shared configuration structures used to
// initialize the mavbridge system: global settings plus per-bridge link
// definitions, loaded from configs/config.yml.
package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Global  GlobalConfig   `yaml:"global"`
	Bridges []BridgeConfig `yaml:"bridges"`
}

// GlobalConfig defines shared defaults across the system.
type GlobalConfig struct {
	ServerAddr       string `yaml:"server_addr"`        // ground server listen address (e.g. ":9000")
	LivenessWindowMs int    `yaml:"liveness_window_ms"` // mark a vehicle stale after this silence
	StatusIntervalMs int    `yaml:"status_interval_ms"` // bridge health report period
}

// BridgeConfig defines configuration for a single hardware link bridge.
type BridgeConfig struct {
	ID                   string `yaml:"id"`
	LinkPath             string `yaml:"link_path"` // serial device, e.g. /dev/ttyACM0
	BaudRate             int    `yaml:"baud_rate"`
	DataBits             int    `yaml:"data_bits"`
	StopBits             int    `yaml:"stop_bits"`
	Parity               string `yaml:"parity"`      // none | odd | even
	BufferSize           int    `yaml:"buffer_size"` // link read buffer, bytes
	RemoteURL            string `yaml:"remote_url"`  // ground server base URL
	ReconnectBaseMs      int    `yaml:"reconnect_base_ms"`
	ReconnectCapMs       int    `yaml:"reconnect_cap_ms"`
	ReconnectMaxAttempts int    `yaml:"reconnect_max_attempts"`
}

// LoadConfig reads and parses a YAML config file, applying defaults for
// fields left empty.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills in zero-valued fields with deployment defaults.
func (c *Config) ApplyDefaults() {
	if c.Global.ServerAddr == "" {
		c.Global.ServerAddr = ":9000"
	}
	if c.Global.LivenessWindowMs <= 0 {
		c.Global.LivenessWindowMs = 5000
	}
	if c.Global.StatusIntervalMs <= 0 {
		c.Global.StatusIntervalMs = 10000
	}
	for i := range c.Bridges {
		b := &c.Bridges[i]
		if b.BaudRate <= 0 {
			b.BaudRate = 57600
		}
		if b.DataBits <= 0 {
			b.DataBits = 8
		}
		if b.StopBits <= 0 {
			b.StopBits = 1
		}
		if b.Parity == "" {
			b.Parity = "none"
		}
		if b.BufferSize <= 0 {
			b.BufferSize = 1024
		}
		if b.ReconnectBaseMs <= 0 {
			b.ReconnectBaseMs = 1000
		}
		if b.ReconnectCapMs <= 0 {
			b.ReconnectCapMs = 30000
		}
		if b.ReconnectMaxAttempts <= 0 {
			b.ReconnectMaxAttempts = 5
		}
	}
}
