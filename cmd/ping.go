// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/pkg/fault"
)

var (
	pingCount      int
	pingTimeout    time.Duration
	pingPrivileged bool
)

var pingCmd = &cobra.Command{
	Use:   "ping [target]",
	Short: "Check that the receiver answers ICMP echo",
	Long: `Ping the UDP target (tx.target, or the given address) and print the
round-trip statistics.

The transmitter runs the same check once it has an address, before the first
UDP session. Unprivileged ICMP needs net.ipv4.ping_group_range to include
your group; otherwise use --privileged as root.

Exit codes:
  0 - At least one reply
  1 - No reply or error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 4, "Echo requests to send")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 2*time.Second, "Wait per request")
	pingCmd.Flags().BoolVar(&pingPrivileged, "privileged", false, "Use raw ICMP sockets (needs root)")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	target := cfg.TX.Target
	if len(args) == 1 {
		target = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("PING %s: %d requests\n", target, pingCount)
	stats, err := pingTarget(ctx, target, pingCount, pingTimeout)
	if stats != nil {
		fmt.Printf("%d sent, %d received, %.1f%% loss\n", stats.PacketsSent, stats.PacketsRecv, stats.PacketLoss)
		if stats.PacketsRecv > 0 {
			fmt.Printf("rtt min/avg/max/stddev = %s/%s/%s/%s\n",
				stats.MinRtt, stats.AvgRtt, stats.MaxRtt, stats.StdDevRtt)
		}
	}
	return err
}

// pingTarget sends count echo requests, allowing timeout for each. It
// fails with fault.ErrTimeout when nothing answers.
func pingTarget(ctx context.Context, target string, count int, timeout time.Duration) (*probing.Statistics, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return nil, fmt.Errorf("create pinger: %w", err)
	}
	pinger.Count = count
	pinger.Timeout = time.Duration(count) * timeout
	pinger.SetPrivileged(pingPrivileged)
	pinger.OnRecv = func(pkt *probing.Packet) {
		logger.Debug("echo reply",
			zap.Stringer("from", pkt.IPAddr),
			zap.Int("seq", pkt.Seq),
			zap.Duration("rtt", pkt.Rtt))
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", target, err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return stats, fmt.Errorf("%w: no reply from %s", fault.ErrTimeout, target)
	}
	return stats, nil
}
