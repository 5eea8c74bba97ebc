// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var txTUI bool

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Run the transmitting side of a latency test",
	Long: `Transmit test packets and pulse the TX indicator for each one.

A session sends one packet every test interval until the test duration has
passed, then waits for a restart. Button 1 on the indicator bridge, or 'r'
in the dashboard, restarts the session; a running session is stopped first.

Packet types:
  udp  Join the configured network and send "Packet_<n>_Time_<ms>" datagrams
       to --target on the test port.
  raw  Inject 802.11 beacon frames carrying the test SSID element. With
       raw.non_connected the radio is tuned to raw.channel first.

Examples:
  strobe tx --type udp --target 192.168.1.2
  strobe tx --type raw --duration 30s --interval 100ms --tui
  strobe tx --simulate --tui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd, "tx", txBindings, txTUI)
	},
}

var txBindings = map[string]string{
	"type":     "test.packet_type",
	"duration": "test.duration",
	"interval": "test.interval",
	"target":   "tx.target",
}

func init() {
	rootCmd.AddCommand(txCmd)
	f := txCmd.Flags()
	f.String("type", "udp", "Packet type (udp, raw)")
	f.Duration("duration", 10*time.Second, "Session duration")
	f.Duration("interval", 100*time.Millisecond, "Interval between packets")
	f.String("target", "192.168.1.1", "Receiver address for UDP packets")
	f.BoolVar(&txTUI, "tui", false, "Show the interactive dashboard")
}
