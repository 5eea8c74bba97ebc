// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads strobe settings from defaults, an optional YAML
// file, STROBE_* environment variables, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/strobe/pkg/fault"
	"github.com/Thermoquad/strobe/pkg/netstack"
	"github.com/Thermoquad/strobe/pkg/session"
)

// EnvPrefix namespaces environment overrides: STROBE_TEST_DURATION=30s
const EnvPrefix = "STROBE"

const redacted = "********"

// Config is the resolved configuration
type Config struct {
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Test      TestConfig      `mapstructure:"test" yaml:"test"`
	TX        TXConfig        `mapstructure:"tx" yaml:"tx"`
	RX        RXConfig        `mapstructure:"rx" yaml:"rx"`
	SoftAP    SoftAPConfig    `mapstructure:"softap" yaml:"softap"`
	Station   StationConfig   `mapstructure:"station" yaml:"station"`
	WiFi      WiFiConfig      `mapstructure:"wifi" yaml:"wifi"`
	Raw       RawConfig       `mapstructure:"raw" yaml:"raw"`
	Indicator IndicatorConfig `mapstructure:"indicator" yaml:"indicator"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Simulate  bool            `mapstructure:"simulate" yaml:"simulate"`
}

type DeviceConfig struct {
	Role string `mapstructure:"role" yaml:"role"`
}

type TestConfig struct {
	PacketType string        `mapstructure:"packet_type" yaml:"packet_type"`
	Duration   time.Duration `mapstructure:"duration" yaml:"duration"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	Port       int           `mapstructure:"port" yaml:"port"`
}

type TXConfig struct {
	Target string `mapstructure:"target" yaml:"target"`
}

type RXConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type SoftAPConfig struct {
	SSID        string        `mapstructure:"ssid" yaml:"ssid"`
	Passphrase  string        `mapstructure:"passphrase" yaml:"passphrase"`
	AddressBase string        `mapstructure:"address_base" yaml:"address_base"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

type StationConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

type WiFiConfig struct {
	Interface      string        `mapstructure:"interface" yaml:"interface"`
	SSID           string        `mapstructure:"ssid" yaml:"ssid"`
	Passphrase     string        `mapstructure:"passphrase" yaml:"passphrase"`
	RegDomain      string        `mapstructure:"reg_domain" yaml:"reg_domain"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	Backoff        time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

type RawConfig struct {
	Rate         uint8 `mapstructure:"rate" yaml:"rate"`
	Mode         uint8 `mapstructure:"mode" yaml:"mode"`
	Queue        uint8 `mapstructure:"queue" yaml:"queue"`
	Injection    bool  `mapstructure:"injection" yaml:"injection"`
	Channel      int   `mapstructure:"channel" yaml:"channel"`
	NonConnected bool  `mapstructure:"non_connected" yaml:"non_connected"`
}

type IndicatorConfig struct {
	Port  string        `mapstructure:"port" yaml:"port"`
	Baud  int           `mapstructure:"baud" yaml:"baud"`
	URL   string        `mapstructure:"url" yaml:"url"`
	Pulse time.Duration `mapstructure:"pulse" yaml:"pulse"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// SetDefaults installs the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("device.role", "tx")

	v.SetDefault("test.packet_type", "udp")
	v.SetDefault("test.duration", "10s")
	v.SetDefault("test.interval", "100ms")
	v.SetDefault("test.port", 5001)

	v.SetDefault("tx.target", "192.168.1.1")
	v.SetDefault("rx.mode", "station")

	v.SetDefault("softap.ssid", "strobe-latency")
	v.SetDefault("softap.passphrase", "")
	v.SetDefault("softap.address_base", "192.168.1.2")
	v.SetDefault("softap.settle_delay", "1s")
	v.SetDefault("station.capacity", 4)

	v.SetDefault("wifi.interface", "wlan0")
	v.SetDefault("wifi.ssid", "strobe-latency")
	v.SetDefault("wifi.passphrase", "")
	v.SetDefault("wifi.reg_domain", "US")
	v.SetDefault("wifi.max_retries", 60)
	v.SetDefault("wifi.attempt_timeout", "10s")
	v.SetDefault("wifi.backoff", "1s")

	v.SetDefault("raw.rate", 9)
	v.SetDefault("raw.mode", 0)
	v.SetDefault("raw.queue", 0)
	v.SetDefault("raw.injection", true)
	v.SetDefault("raw.channel", 1)
	v.SetDefault("raw.non_connected", true)

	v.SetDefault("indicator.port", "")
	v.SetDefault("indicator.baud", 115200)
	v.SetDefault("indicator.url", "")
	v.SetDefault("indicator.pulse", "50ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("simulate", false)
}

// Load reads configuration from file and environment variables. A missing
// config file is not an error unless configPath names it explicitly.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("strobe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/strobe")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates the settings held by v
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every setting. Errors wrap fault.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{fault.ErrInvalidConfig}, args...)...))
	}
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := session.ParseRole(c.Device.Role)
	check(err)
	_, err = session.ParsePacketType(c.Test.PacketType)
	check(err)
	_, err = session.ParseRXMode(c.RX.Mode)
	check(err)

	if c.Test.Duration <= 0 {
		add("test.duration must be positive, got %v", c.Test.Duration)
	}
	if c.Test.Interval <= 0 {
		add("test.interval must be positive, got %v", c.Test.Interval)
	}
	if c.Test.Port < 1 || c.Test.Port > 65535 {
		add("test.port %d out of range", c.Test.Port)
	}
	if _, err := netip.ParseAddr(c.TX.Target); err != nil {
		add("tx.target %q is not an IP address", c.TX.Target)
	}

	if n := len(c.SoftAP.SSID); n == 0 || n > netstack.MaxSSIDLength {
		add("softap.ssid must be 1..%d bytes, got %d", netstack.MaxSSIDLength, n)
	}
	if len(c.WiFi.SSID) > netstack.MaxSSIDLength {
		add("wifi.ssid must be at most %d bytes, got %d", netstack.MaxSSIDLength, len(c.WiFi.SSID))
	}
	// Empty passphrases are filled in later from the environment or a prompt
	for _, p := range []struct{ key, value string }{
		{"softap.passphrase", c.SoftAP.Passphrase},
		{"wifi.passphrase", c.WiFi.Passphrase},
	} {
		if n := len(p.value); n > 0 && (n < netstack.MinPassphraseLength || n > netstack.MaxPassphraseLength) {
			add("%s must be %d..%d bytes, got %d", p.key, netstack.MinPassphraseLength, netstack.MaxPassphraseLength, n)
		}
	}
	if a, err := netip.ParseAddr(c.SoftAP.AddressBase); err != nil || !a.Is4() {
		add("softap.address_base %q is not an IPv4 address", c.SoftAP.AddressBase)
	}
	if c.SoftAP.SettleDelay < 0 {
		add("softap.settle_delay must not be negative")
	}
	if c.Station.Capacity < 1 {
		add("station.capacity must be at least 1, got %d", c.Station.Capacity)
	}

	if !isRegDomain(c.WiFi.RegDomain) {
		add("wifi.reg_domain %q is not a two-letter country code", c.WiFi.RegDomain)
	}
	if c.WiFi.MaxRetries < 1 {
		add("wifi.max_retries must be at least 1, got %d", c.WiFi.MaxRetries)
	}
	if c.WiFi.AttemptTimeout <= 0 {
		add("wifi.attempt_timeout must be positive")
	}
	if c.WiFi.Backoff < 0 {
		add("wifi.backoff must not be negative")
	}
	if c.Raw.Channel < 1 || c.Raw.Channel > 233 {
		add("raw.channel %d out of range 1..233", c.Raw.Channel)
	}

	if c.Indicator.Port != "" && c.Indicator.URL != "" {
		add("indicator.port and indicator.url are mutually exclusive")
	}
	if c.Indicator.Pulse <= 0 {
		add("indicator.pulse must be positive")
	}

	return errors.Join(errs...)
}

func isRegDomain(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range strings.ToUpper(s) {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// YAML renders the configuration with secrets masked
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.SoftAP.Passphrase != "" {
		out.SoftAP.Passphrase = redacted
	}
	if out.WiFi.Passphrase != "" {
		out.WiFi.Passphrase = redacted
	}
	return yaml.Marshal(&out)
}
