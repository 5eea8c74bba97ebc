// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/internal/config"
)

var (
	cfgFile string

	// WebSocket bridge auth flags
	wsUsername    string
	wsNoSSLVerify bool

	v      *viper.Viper
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "strobe",
	Short: "Wi-Fi packet latency probe",
	Long: `Strobe - measures one-way Wi-Fi latency between two devices.

A transmitter sends test packets (UDP datagrams or raw 802.11 beacon frames)
at a fixed interval and pulses its TX indicator for each one. A receiver
pulses its RX indicator for every test packet it sees. Recording both
indicator lines with a logic analyzer and running "strobe analyze" on the
capture gives the per-packet latency.

Indicator bridge (optional):
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

The bridge drives the indicator pins and reports button presses; button 1
restarts the transmit session. Without a bridge, indicator pulses are logged.

Configuration is read from strobe.yaml (., ./configs, /etc/strobe) or
--config, then STROBE_* environment variables, then flags.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		v, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := bindFlags(cmd.Root().PersistentFlags(), rootBindings); err != nil {
			return err
		}
		logger, err = config.NewLogger(v)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// rootBindings maps persistent flags to configuration keys
var rootBindings = map[string]string{
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"simulate":   "simulate",
	"port":       "indicator.port",
	"baud":       "indicator.baud",
	"url":        "indicator.url",
	"metrics":    "metrics.listen",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: strobe.yaml in ., ./configs, /etc/strobe)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")
	pf.Bool("simulate", false, "Use the simulated network stack")
	pf.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9102)")

	// Indicator bridge flags
	pf.StringP("port", "p", "", "Indicator bridge serial port")
	pf.IntP("baud", "b", 115200, "Baud rate (serial only)")
	pf.StringP("url", "u", "", "Indicator bridge WebSocket URL (ws:// or wss://)")
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// bindFlags binds the flags that were set on the command line to their
// configuration keys, so unset flags do not override the file or env.
func bindFlags(fs *pflag.FlagSet, bindings map[string]string) error {
	for name, key := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig binds command flags and decodes the full configuration
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	if err := bindFlags(cmd.Flags(), bindings); err != nil {
		return nil, err
	}
	return config.Decode(v)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
