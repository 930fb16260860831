// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// blemidi - Serial MIDI to BLE-MIDI bridge
//
// Rebuilds MIDI messages from a raw serial byte stream and forwards them as
// timestamped BLE-MIDI notifications.

package main

import (
	"os"

	"github.com/Thermoquad/blemidi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
