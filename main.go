// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors
//
// serialbridge - host side of the Dodobot microcontroller serial link
//
// Runs the ready handshake, decodes telemetry frames into records, publishes
// them on MQTT and forwards commands back to the device.

package main

import (
	"os"

	"github.com/dodobot/serialbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
