// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/blemidi/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	logLevel   string

	// cfg holds file defaults merged under any explicitly set flags
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "blemidi",
	Short: "Serial MIDI to BLE-MIDI bridge",
	Long: `blemidi - Reconstruct MIDI messages from a serial byte stream and
re-encode them as timestamped BLE-MIDI notifications.

Input sources:
  Serial:    --port /dev/ttyUSB0 [--baud 31250]
  WebSocket: --url ws://host/path [--username user]
  File:      bridge --input capture.mid (or - for stdin)

Defaults are read from ~/.config/blemidi/config.json when present; flags set
on the command line take precedence.

For WebSocket authentication, the password is read from the BLEMIDI_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 31250, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket source URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/blemidi/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

// loadSettings installs the logger and fills unset flags from the config file.
func loadSettings(cmd *cobra.Command, args []string) error {
	if err := initLogger(logLevel); err != nil {
		return err
	}

	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("port") && cfg.Serial.Port != "" {
		portName = cfg.Serial.Port
	}
	if !flags.Changed("baud") {
		baudRate = cfg.Serial.Baud
	}
	if !flags.Changed("username") && cfg.Sink.Username != "" {
		wsUsername = cfg.Sink.Username
	}
	if !flags.Changed("no-ssl-verify") && cfg.Sink.NoSSLVerify {
		wsNoSSLVerify = true
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
