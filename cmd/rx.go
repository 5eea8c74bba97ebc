// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var rxTUI bool

var rxCmd = &cobra.Command{
	Use:   "rx",
	Short: "Run the receiving side of a latency test",
	Long: `Receive test packets and pulse the RX indicator for each one.

Receive modes:
  udp + station      Join the configured network and listen on the test port.
  udp + softap       Start an access point and wait for the transmitter to
                     associate before listening.
  raw + monitor      Put the radio in monitor mode on raw.channel and count
                     beacon frames carrying the test SSID element.
  raw + promiscuous  Join the configured network and inspect every frame.

Examples:
  strobe rx --type udp --mode softap
  strobe rx --type raw --mode monitor --tui
  strobe rx --simulate --type raw --mode promiscuous`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd, "rx", rxBindings, rxTUI)
	},
}

var rxBindings = map[string]string{
	"type": "test.packet_type",
	"mode": "rx.mode",
}

func init() {
	rootCmd.AddCommand(rxCmd)
	f := rxCmd.Flags()
	f.String("type", "udp", "Packet type (udp, raw)")
	f.String("mode", "station", "Receive mode (station, softap, monitor, promiscuous)")
	f.BoolVar(&rxTUI, "tui", false, "Show the interactive dashboard")
}
