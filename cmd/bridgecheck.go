// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/strobe/pkg/indicator"
)

var (
	bridgeTestTimeout int
	bridgeTestPulses  int
)

var bridgeTestCmd = &cobra.Command{
	Use:   "bridge_test",
	Short: "Test the indicator bridge by pulsing both lines and waiting for a button press",
	Long: `Pulse the TX and RX indicator lines through the bridge, then wait for
button 1 to be pressed until timeout.

Watch the logic analyzer (or the LEDs) while the pulses run to check the
wiring, then press button 1 on the bridge to check the return path.

Exit codes:
  0 - Button press received before timeout
  1 - Timeout reached without a button press
  2 - Connection error`,
	RunE: runBridgeTest,
}

func init() {
	rootCmd.AddCommand(bridgeTestCmd)
	bridgeTestCmd.Flags().IntVar(&bridgeTestTimeout, "timeout", 10, "Timeout in seconds to wait for a button press")
	bridgeTestCmd.Flags().IntVar(&bridgeTestPulses, "pulses", 5, "Pulses to send on each line")
}

func runBridgeTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenBridge(cfg.Indicator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	if conn == nil {
		fmt.Fprintf(os.Stderr, "Connection error: no bridge configured (use --port or --url)\n")
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Strobe - Bridge Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", bridgeTestTimeout)

	trigger := indicator.NewTrigger(indicator.NewBridgeDriver(conn), cfg.Indicator.Pulse, logger.Named("indicator"))
	defer trigger.Close()

	gap := max(2*cfg.Indicator.Pulse, 100*time.Millisecond)
	for _, ch := range []indicator.Channel{indicator.ChannelTX, indicator.ChannelRX} {
		fmt.Printf("Pulsing %s x%d...\n", ch, bridgeTestPulses)
		for range bridgeTestPulses {
			trigger.Pulse(ch)
			time.Sleep(gap)
		}
	}
	fmt.Printf("\nWaiting for button %d...\n", indicator.RestartButton)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pressed := make(chan struct{}, 1)
	errChan := make(chan error, 1)
	go func() {
		errChan <- indicator.WatchButtons(ctx, conn, func() {
			select {
			case pressed <- struct{}{}:
			default:
			}
		})
	}()

	select {
	case <-pressed:
		fmt.Printf("SUCCESS: Button %d pressed\n", indicator.RestartButton)
		os.Exit(0)

	case err := <-errChan:
		if err == nil {
			err = fmt.Errorf("bridge closed the connection")
		}
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(bridgeTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No button press within %d seconds\n", bridgeTestTimeout)
		os.Exit(1)
	}

	return nil
}
