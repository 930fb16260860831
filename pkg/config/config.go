// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads bridge defaults from ~/.config/blemidi/config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
)

// DeviceConfig holds the advertising parameters announced to the BLE peer
type DeviceConfig struct {
	Name string `json:"name"`
	MTU  int    `json:"mtu"`

	// Preferred connection interval, 1.25 ms units
	IntervalMin uint16 `json:"intervalMin"`
	IntervalMax uint16 `json:"intervalMax"`
}

// SerialConfig describes the MIDI input line
type SerialConfig struct {
	Port string `json:"port,omitempty"`
	Baud int    `json:"baud"`
}

// SinkConfig describes the WebSocket peer
type SinkConfig struct {
	URL         string `json:"url,omitempty"`
	Username    string `json:"username,omitempty"`
	NoSSLVerify bool   `json:"noSSLVerify,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Device        DeviceConfig `json:"device"`
	Serial        SerialConfig `json:"serial"`
	Sink          SinkConfig   `json:"sink,omitempty"`
	RunningStatus bool         `json:"runningStatus,omitempty"`
	RunningArity  bool         `json:"runningArity,omitempty"`
	CapturePath   string       `json:"capturePath,omitempty"`
	StatusAddr    string       `json:"statusAddr,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:        "BLE-MIDI",
			MTU:         blemidi.DefaultMTU,
			IntervalMin: 6,
			IntervalMax: 6,
		},
		Serial: SerialConfig{
			Baud: 31250,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "blemidi"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file yields defaults; fields
// absent from the file keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the bridge cannot run with
func (c *Config) Validate() error {
	if blemidi.CapacityForMTU(c.Device.MTU) < blemidi.MinCapacity {
		return fmt.Errorf("device.mtu %d: %w", c.Device.MTU, blemidi.ErrCapacityTooSmall)
	}
	if c.Device.MTU > blemidi.MaxMTU {
		return fmt.Errorf("device.mtu %d: %w", c.Device.MTU, blemidi.ErrCapacityTooLarge)
	}
	if c.Device.IntervalMin == 0 || c.Device.IntervalMax < c.Device.IntervalMin {
		return fmt.Errorf("invalid connection interval %d-%d", c.Device.IntervalMin, c.Device.IntervalMax)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.Baud)
	}
	return nil
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}
