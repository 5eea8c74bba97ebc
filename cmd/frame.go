// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/strobe/pkg/frame"
)

var (
	frameCount    int
	frameDescribe bool
)

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Print the raw test frames the transmitter would send",
	Long: `Build test frames with the configured raw.rate, raw.mode and raw.queue and
print each as a hex dump. The sequence number advances from frame to frame
exactly as during a raw session.

With --describe each frame is also decoded as 802.11 and summarised.

Examples:
  strobe frame
  strobe frame --count 3 --describe`,
	RunE: runFrame,
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.Flags().IntVar(&frameCount, "count", 1, "Frames to build")
	frameCmd.Flags().BoolVar(&frameDescribe, "describe", false, "Decode each frame as 802.11")
}

func runFrame(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	codec := frame.NewCodec(frame.Options{
		Rate:   cfg.Raw.Rate,
		Mode:   cfg.Raw.Mode,
		Queue:  cfg.Raw.Queue,
		Source: frame.DefaultSource,
	})

	for i := range max(frameCount, 1) {
		b := codec.Build()

		var f frame.Frame
		if err := f.UnmarshalBinary(b); err != nil {
			return err
		}

		fmt.Printf("Frame %d (%d bytes, seq_ctrl 0x%04X)\n", i+1, len(b), f.Beacon.SeqCtrl)
		fmt.Printf("  %s\n", frame.FormatPreamble(f.Preamble))
		if frameDescribe {
			d, err := frame.Describe(b[frame.PreambleSize:])
			if err != nil {
				fmt.Printf("  decode: %v\n", err)
			} else {
				fmt.Printf("  %s\n", d)
			}
		}
		fmt.Println()
		fmt.Print(frame.FormatFrame(b))
		fmt.Println()
	}
	return nil
}
