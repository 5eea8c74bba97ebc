// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/strobe/pkg/fault"
)

func defaults(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	c, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode defaults: %v", err)
	}
	return c
}

// ============================================================
// Loading
// ============================================================

func TestDefaults(t *testing.T) {
	c := defaults(t)

	if c.Device.Role != "tx" || c.Test.PacketType != "udp" || c.RX.Mode != "station" {
		t.Errorf("role/type/mode = %s/%s/%s", c.Device.Role, c.Test.PacketType, c.RX.Mode)
	}
	if c.Test.Duration != 10*time.Second || c.Test.Interval != 100*time.Millisecond {
		t.Errorf("duration/interval = %v/%v", c.Test.Duration, c.Test.Interval)
	}
	if c.Test.Port != 5001 || c.TX.Target != "192.168.1.1" {
		t.Errorf("port/target = %d/%s", c.Test.Port, c.TX.Target)
	}
	if c.WiFi.MaxRetries != 60 || c.WiFi.AttemptTimeout != 10*time.Second || c.WiFi.Backoff != time.Second {
		t.Errorf("retry policy = %d/%v/%v", c.WiFi.MaxRetries, c.WiFi.AttemptTimeout, c.WiFi.Backoff)
	}
	if c.Raw.Rate != 9 || !c.Raw.Injection || c.Raw.Channel != 1 {
		t.Errorf("raw = %+v", c.Raw)
	}
	if c.Station.Capacity != 4 || c.SoftAP.SettleDelay != time.Second || c.SoftAP.AddressBase != "192.168.1.2" {
		t.Errorf("station/softap = %+v / %+v", c.Station, c.SoftAP)
	}
	if c.Indicator.Pulse != 50*time.Millisecond || c.Indicator.Baud != 115200 {
		t.Errorf("indicator = %+v", c.Indicator)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strobe.yaml")
	data := `
device:
  role: rx
test:
  packet_type: raw
  interval: 250ms
rx:
  mode: monitor
raw:
  channel: 36
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STROBE_TEST_DURATION", "45s")
	t.Setenv("STROBE_WIFI_REG_DOMAIN", "DE")

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if c.Device.Role != "rx" || c.Test.PacketType != "raw" || c.RX.Mode != "monitor" {
		t.Errorf("file values not applied: %+v %+v %+v", c.Device, c.Test, c.RX)
	}
	if c.Test.Interval != 250*time.Millisecond || c.Raw.Channel != 36 {
		t.Errorf("interval/channel = %v/%d", c.Test.Interval, c.Raw.Channel)
	}
	if c.Test.Duration != 45*time.Second || c.WiFi.RegDomain != "DE" {
		t.Errorf("env values not applied: duration %v, reg %q", c.Test.Duration, c.WiFi.RegDomain)
	}
	if c.Test.Port != 5001 {
		t.Errorf("default lost: port %d", c.Test.Port)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := v.GetString("device.role"); got != "tx" {
		t.Errorf("device.role = %q", got)
	}
}

// ============================================================
// Validation
// ============================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string // substring of the error, empty for valid
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad role", func(c *Config) { c.Device.Role = "relay" }, "role"},
		{"bad type", func(c *Config) { c.Test.PacketType = "tcp" }, "packet type"},
		{"bad mode", func(c *Config) { c.RX.Mode = "mesh" }, "rx mode"},
		{"bad target", func(c *Config) { c.TX.Target = "gateway" }, "tx.target"},
		{"zero duration", func(c *Config) { c.Test.Duration = 0 }, "test.duration"},
		{"negative interval", func(c *Config) { c.Test.Interval = -time.Second }, "test.interval"},
		{"port", func(c *Config) { c.Test.Port = 70000 }, "test.port"},
		{"long ssid", func(c *Config) { c.SoftAP.SSID = strings.Repeat("x", 33) }, "softap.ssid"},
		{"short passphrase", func(c *Config) { c.SoftAP.Passphrase = "short" }, "softap.passphrase"},
		{"long passphrase", func(c *Config) { c.WiFi.Passphrase = strings.Repeat("p", 64) }, "wifi.passphrase"},
		{"ok passphrase", func(c *Config) { c.WiFi.Passphrase = "password" }, ""},
		{"channel low", func(c *Config) { c.Raw.Channel = 0 }, "raw.channel"},
		{"channel high", func(c *Config) { c.Raw.Channel = 234 }, "raw.channel"},
		{"capacity", func(c *Config) { c.Station.Capacity = 0 }, "station.capacity"},
		{"reg domain", func(c *Config) { c.WiFi.RegDomain = "USA" }, "reg_domain"},
		{"reg domain digits", func(c *Config) { c.WiFi.RegDomain = "0X" }, "reg_domain"},
		{"lowercase reg domain", func(c *Config) { c.WiFi.RegDomain = "de" }, ""},
		{"address base", func(c *Config) { c.SoftAP.AddressBase = "fe80::1" }, "address_base"},
		{"both bridges", func(c *Config) { c.Indicator.Port = "/dev/ttyACM0"; c.Indicator.URL = "ws://bridge" }, "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults(t)
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if !errors.Is(err, fault.ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	c := defaults(t)
	c.Device.Role = "relay"
	c.Raw.Channel = 0
	c.Station.Capacity = 0

	err := c.Validate()
	for _, want := range []string{"role", "raw.channel", "station.capacity"} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("error %v does not mention %q", err, want)
		}
	}
}

// ============================================================
// YAML dump
// ============================================================

func TestYAML_MasksSecrets(t *testing.T) {
	c := defaults(t)
	c.SoftAP.Passphrase = "hunter2hunter2"

	out, err := c.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	if strings.Contains(string(out), "hunter2") {
		t.Errorf("passphrase leaked:\n%s", out)
	}
	if c.SoftAP.Passphrase != "hunter2hunter2" {
		t.Error("YAML modified the config")
	}

	var back map[string]map[string]any
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal dump: %v", err)
	}
	if back["softap"]["passphrase"] != redacted {
		t.Errorf("softap.passphrase = %v", back["softap"]["passphrase"])
	}
	if back["test"]["duration"] != "10s" {
		t.Errorf("test.duration = %v, want 10s", back["test"]["duration"])
	}
	if back["wifi"]["passphrase"] != "" {
		t.Errorf("empty passphrase rendered as %v", back["wifi"]["passphrase"])
	}
}
