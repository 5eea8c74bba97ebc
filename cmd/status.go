// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/strobe/pkg/netstack"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the Wi-Fi interface",
	Long: `Print the interface mode, link state, the network it is associated with,
and any stations associated to its access point.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	var stack netstack.Stack
	if cfg.Simulate {
		stack = netstack.NewSim(netstack.DefaultSimConfig(), logger.Named("sim"))
	} else {
		host, err := netstack.NewHost(netstack.HostConfig{Interface: cfg.WiFi.Interface}, logger.Named("netstack"))
		if err != nil {
			return err
		}
		stack = host
	}
	defer stack.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	st, err := stack.Status(ctx)
	if err != nil {
		return err
	}

	up := "down"
	if st.Up {
		up = "up"
	}
	fmt.Printf("Interface: %s (%s, %s)\n", st.Interface, st.Mode, up)
	if st.SSID != "" {
		fmt.Printf("SSID:      %s\n", st.SSID)
		fmt.Printf("BSSID:     %s\n", st.BSSID)
	}
	if st.Frequency > 0 {
		fmt.Printf("Frequency: %d MHz (channel %d)\n", st.Frequency, netstack.FrequencyChannel(st.Frequency))
	}
	if st.Signal != 0 {
		fmt.Printf("Signal:    %d dBm\n", st.Signal)
	}
	if len(st.Stations) > 0 {
		fmt.Printf("Stations:  %d\n", len(st.Stations))
		for _, s := range st.Stations {
			fmt.Printf("  %s  %d dBm  connected %s\n", s.MAC, s.Signal, s.Connected.Truncate(time.Second))
		}
	}
	return nil
}
