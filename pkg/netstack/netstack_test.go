// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package netstack

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// collector records dispatched events
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Handle(ctx context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) kinds() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []EventKind
	for _, ev := range c.events {
		out = append(out, ev.Kind)
	}
	return out
}

// ============================================================
// Dispatch
// ============================================================

func TestDispatch_OrderAndFanOut(t *testing.T) {
	events := make(chan Event, 4)
	events <- Event{Kind: EventLinkConnected}
	events <- Event{Kind: EventDHCPBound, Addr: netip.MustParseAddr("10.0.0.2")}
	events <- Event{Kind: EventDisconnected}
	close(events)

	a, b := &collector{}, &collector{}
	var order []string
	trace := HandlerFunc(func(ctx context.Context, ev Event) { order = append(order, ev.Kind.String()) })

	Dispatch(context.Background(), events, zaptest.NewLogger(t), a, trace, b)

	want := []EventKind{EventLinkConnected, EventDHCPBound, EventDisconnected}
	if !slices.Equal(a.kinds(), want) || !slices.Equal(b.kinds(), want) {
		t.Errorf("handlers saw %v / %v, want %v", a.kinds(), b.kinds(), want)
	}
	if strings.Join(order, ",") != "LINK_CONNECTED,DHCP_BOUND,DISCONNECTED" {
		t.Errorf("order = %v", order)
	}
}

func TestDispatch_StopsOnCancel(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			Dispatch(ctx, make(chan Event), zaptest.NewLogger(t))
			close(done)
		}()

		cancel()
		synctest.Wait()
		select {
		case <-done:
		default:
			t.Error("Dispatch still running after cancel")
		}
	})
}

func TestEvent_String(t *testing.T) {
	mac, _ := net.ParseMAC("02:00:00:00:00:01")
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: EventLinkFailed, Code: StatusWrongPassword}, "LINK_FAILED(2)"},
		{Event{Kind: EventStationConnected, MAC: mac}, "STATION_CONNECTED(02:00:00:00:00:01)"},
		{Event{Kind: EventDHCPBound, Addr: netip.MustParseAddr("192.168.1.5")}, "DHCP_BOUND(192.168.1.5)"},
		{Event{Kind: EventInterfaceUp}, "INTERFACE_UP"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// ============================================================
// Simulated stack
// ============================================================

func TestSim_ConnectSuccess(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSim(DefaultSimConfig(), zaptest.NewLogger(t))
		defer s.Close()

		if err := s.Connect(context.Background(), Credentials{SSID: "lab"}); err != nil {
			t.Fatalf("Connect: %v", err)
		}

		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		ev := <-s.Events()
		if ev.Kind != EventLinkConnected {
			t.Fatalf("first event = %v, want LINK_CONNECTED", ev)
		}

		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		ev = <-s.Events()
		if ev.Kind != EventDHCPBound || ev.Addr != netip.MustParseAddr("192.168.1.100") {
			t.Errorf("second event = %v, want DHCP_BOUND(192.168.1.100)", ev)
		}

		st, _ := s.Status(context.Background())
		if st.SSID != "lab" {
			t.Errorf("Status SSID = %q", st.SSID)
		}
	})
}

func TestSim_ConnectFailures(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		cfg := DefaultSimConfig()
		cfg.FailAttempts = 1
		cfg.FailCode = StatusNotFound
		s := NewSim(cfg, zaptest.NewLogger(t))
		defer s.Close()

		s.Connect(context.Background(), Credentials{SSID: "lab"})
		time.Sleep(cfg.AssocDelay)
		synctest.Wait()
		if ev := <-s.Events(); ev.Kind != EventLinkFailed || ev.Code != StatusNotFound {
			t.Errorf("event = %v, want LINK_FAILED(4)", ev)
		}

		s.Connect(context.Background(), Credentials{SSID: "lab"})
		time.Sleep(cfg.AssocDelay)
		synctest.Wait()
		if ev := <-s.Events(); ev.Kind != EventLinkConnected {
			t.Errorf("event = %v, want LINK_CONNECTED", ev)
		}
		if s.Attempts() != 2 {
			t.Errorf("Attempts = %d, want 2", s.Attempts())
		}
	})
}

func TestSim_Stations(t *testing.T) {
	s := NewSim(DefaultSimConfig(), zaptest.NewLogger(t))
	defer s.Close()

	mac, _ := net.ParseMAC("02:00:00:00:00:07")
	s.AddStation(mac)
	if ev := <-s.Events(); ev.Kind != EventStationConnected || ev.MAC.String() != mac.String() {
		t.Errorf("event = %v", ev)
	}
	st, _ := s.Status(context.Background())
	if len(st.Stations) != 1 {
		t.Errorf("stations = %d, want 1", len(st.Stations))
	}

	s.RemoveStation(mac)
	if ev := <-s.Events(); ev.Kind != EventStationDisconnected {
		t.Errorf("event = %v", ev)
	}
	st, _ = s.Status(context.Background())
	if len(st.Stations) != 0 {
		t.Errorf("stations = %d, want 0", len(st.Stations))
	}
}

// ============================================================
// WaitInterfaceUp
// ============================================================

func TestWaitInterfaceUp_AfterModeChange(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := NewSim(DefaultSimConfig(), zaptest.NewLogger(t))
		defer s.Close()

		start := time.Now()
		s.SetMode(context.Background(), ModeMonitor)
		if err := WaitInterfaceUp(context.Background(), s, 30*time.Second); err != nil {
			t.Fatalf("WaitInterfaceUp: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond || elapsed > 100*time.Millisecond {
			t.Errorf("interface up after %v", elapsed)
		}
	})
}

// downStack never brings its interface up
type downStack struct{ *Sim }

func (downStack) InterfaceUp(ctx context.Context) (bool, error) { return false, nil }

func TestWaitInterfaceUp_Timeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := downStack{NewSim(DefaultSimConfig(), zaptest.NewLogger(t))}
		defer s.Close()

		start := time.Now()
		err := WaitInterfaceUp(context.Background(), s, 30*time.Second)
		if !errors.Is(err, fault.ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
		if elapsed := time.Since(start); elapsed != 30*time.Second {
			t.Errorf("gave up after %v, want 30s", elapsed)
		}
	})
}

// ============================================================
// Host configuration commands
// ============================================================

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		got  []string
		want string
	}{
		{"monitor", iwModeArgs("wlan0", ModeMonitor), "dev wlan0 set type monitor"},
		{"station", iwModeArgs("wlan0", ModeStation), "dev wlan0 set type managed"},
		{"ap", iwModeArgs("wlan1", ModeAP), "dev wlan1 set type __ap"},
		{"channel", iwChannelArgs("wlan0", 11), "dev wlan0 set channel 11"},
		{"reg", iwRegArgs("us"), "reg set US"},
		{"link up", ipLinkArgs("wlan0", true), "link set dev wlan0 up"},
		{"link down", ipLinkArgs("wlan0", false), "link set dev wlan0 down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(tt.got, " "); got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHostapdConfig(t *testing.T) {
	conf := HostapdConfig("wlan0", APConfig{SSID: "strobe-latency", Passphrase: "secret123", Channel: 36})

	for _, line := range []string{
		"interface=wlan0",
		"ssid=strobe-latency",
		"hw_mode=a",
		"channel=36",
		"wpa=2",
		"wpa_passphrase=secret123",
	} {
		if !strings.Contains(conf, line+"\n") {
			t.Errorf("config missing %q:\n%s", line, conf)
		}
	}

	open := HostapdConfig("wlan0", APConfig{SSID: "open"})
	if strings.Contains(open, "wpa=") || !strings.Contains(open, "channel=6\n") {
		t.Errorf("open config:\n%s", open)
	}
}

func TestChannelFrequency(t *testing.T) {
	for _, ch := range []int{1, 6, 11, 13, 14, 36, 149} {
		freq := ChannelFrequency(ch)
		if freq == 0 {
			t.Errorf("ChannelFrequency(%d) = 0", ch)
			continue
		}
		if got := FrequencyChannel(freq); got != ch {
			t.Errorf("FrequencyChannel(%d) = %d, want %d", freq, got, ch)
		}
	}
	if ChannelFrequency(6) != 2437 {
		t.Errorf("channel 6 = %d MHz, want 2437", ChannelFrequency(6))
	}
	if ChannelFrequency(0) != 0 || FrequencyChannel(100) != 0 {
		t.Error("invalid inputs should map to 0")
	}
}

func TestAPConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     APConfig
		wantErr bool
	}{
		{"ok", APConfig{SSID: "strobe-latency", Passphrase: "password"}, false},
		{"max lengths", APConfig{SSID: strings.Repeat("s", 32), Passphrase: strings.Repeat("p", 63)}, false},
		{"empty ssid", APConfig{Passphrase: "password"}, true},
		{"long ssid", APConfig{SSID: strings.Repeat("s", 33), Passphrase: "password"}, true},
		{"short passphrase", APConfig{SSID: "lab", Passphrase: "1234567"}, true},
		{"long passphrase", APConfig{SSID: "lab", Passphrase: strings.Repeat("p", 64)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && !errors.Is(err, fault.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}
