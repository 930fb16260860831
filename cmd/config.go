// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/blemidi/pkg/config"
	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Write the effective settings to the config file named by --config, or to
~/.config/blemidi/config.json. Serial port and baud rate flags given on the
command line are written too. An existing file is kept unless --force is set.`,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	c := *cfg
	c.Serial.Port = portName
	c.Serial.Baud = baudRate

	path, err := writeConfig(&c, configPath, configForce)
	if err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}

// writeConfig saves c to path, or to the default location when path is
// empty, and returns where it went.
func writeConfig(c *config.Config, path string, force bool) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	target := path
	if target == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return "", err
		}
		target = p
	}
	if !force {
		if _, err := os.Stat(target); err == nil {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", target)
		}
	}

	var err error
	if path == "" {
		err = c.Save()
	} else {
		err = c.SaveFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return target, nil
}
