// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package netstack

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an external configuration tool
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the tool and folds its output into the error
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func iwModeArgs(ifname string, m Mode) []string {
	kind := "managed"
	switch m {
	case ModeMonitor:
		kind = "monitor"
	case ModeAP:
		kind = "__ap"
	}
	return []string{"dev", ifname, "set", "type", kind}
}

func iwChannelArgs(ifname string, channel int) []string {
	return []string{"dev", ifname, "set", "channel", strconv.Itoa(channel)}
}

func iwRegArgs(country string) []string {
	return []string{"reg", "set", strings.ToUpper(country)}
}

func ipLinkArgs(ifname string, up bool) []string {
	state := "down"
	if up {
		state = "up"
	}
	return []string{"link", "set", "dev", ifname, state}
}

// HostapdConfig renders a WPA2-PSK access point configuration
func HostapdConfig(ifname string, cfg APConfig) string {
	channel := cfg.Channel
	if channel <= 0 {
		channel = 6
	}
	hwMode := "g"
	if channel > 14 {
		hwMode = "a"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "interface=%s\n", ifname)
	sb.WriteString("driver=nl80211\n")
	fmt.Fprintf(&sb, "ssid=%s\n", cfg.SSID)
	fmt.Fprintf(&sb, "hw_mode=%s\n", hwMode)
	fmt.Fprintf(&sb, "channel=%d\n", channel)
	if cfg.Passphrase != "" {
		sb.WriteString("wpa=2\n")
		fmt.Fprintf(&sb, "wpa_passphrase=%s\n", cfg.Passphrase)
		sb.WriteString("wpa_key_mgmt=WPA-PSK\n")
		sb.WriteString("rsn_pairwise=CCMP\n")
	}
	return sb.String()
}
