// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Strobe - Wi-Fi Packet Latency Probe
//
// Sends and receives timed test packets over Wi-Fi and pulses indicator
// lines so a logic analyzer can measure one-way latency.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/strobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
