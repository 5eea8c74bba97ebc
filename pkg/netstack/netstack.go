// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package netstack abstracts the Wi-Fi network stack the probe runs on.
//
// A Stack performs configuration requests and reports what happens as a
// stream of Events. Dispatch delivers those events, in order, to the
// components that track link and station state.
package netstack

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// Mode is the operating mode of the Wi-Fi interface
type Mode uint8

const (
	ModeStation Mode = iota + 1
	ModeMonitor
	ModeAP
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "station"
	case ModeMonitor:
		return "monitor"
	case ModeAP:
		return "ap"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Link result status codes carried by EventLinkFailed
const (
	StatusSuccess       = 0
	StatusFail          = 1
	StatusWrongPassword = 2
	StatusTimeout       = 3
	StatusNotFound      = 4
)

// EventKind identifies a stack event
type EventKind uint8

const (
	EventLinkConnected EventKind = iota + 1
	EventLinkFailed
	EventDisconnected
	EventDHCPBound
	EventAPEnabled
	EventStationConnected
	EventStationDisconnected
	EventInterfaceUp
)

func (k EventKind) String() string {
	switch k {
	case EventLinkConnected:
		return "LINK_CONNECTED"
	case EventLinkFailed:
		return "LINK_FAILED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventDHCPBound:
		return "DHCP_BOUND"
	case EventAPEnabled:
		return "AP_ENABLED"
	case EventStationConnected:
		return "STATION_CONNECTED"
	case EventStationDisconnected:
		return "STATION_DISCONNECTED"
	case EventInterfaceUp:
		return "INTERFACE_UP"
	default:
		return "UNKNOWN"
	}
}

// Event is one notification from the stack. Code is set for
// EventLinkFailed, MAC for station events, Addr for EventDHCPBound.
type Event struct {
	Kind EventKind
	Code int
	MAC  net.HardwareAddr
	Addr netip.Addr
}

func (e Event) String() string {
	switch e.Kind {
	case EventLinkFailed:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Code)
	case EventStationConnected, EventStationDisconnected:
		return fmt.Sprintf("%s(%s)", e.Kind, e.MAC)
	case EventDHCPBound:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Addr)
	default:
		return e.Kind.String()
	}
}

// Credentials select the network to join in station mode
type Credentials struct {
	SSID       string
	Passphrase string // empty for an open network
}

// APConfig configures access-point mode
type APConfig struct {
	SSID       string
	Passphrase string
	Channel    int
}

// Access-point credential limits
const (
	MaxSSIDLength       = 32
	MinPassphraseLength = 8
	MaxPassphraseLength = 63
)

// Validate checks the SSID and passphrase lengths
func (c APConfig) Validate() error {
	if c.SSID == "" || len(c.SSID) > MaxSSIDLength {
		return fmt.Errorf("%w: SSID must be 1..%d bytes, got %d", fault.ErrInvalidConfig, MaxSSIDLength, len(c.SSID))
	}
	if n := len(c.Passphrase); n < MinPassphraseLength || n > MaxPassphraseLength {
		return fmt.Errorf("%w: passphrase must be %d..%d bytes, got %d",
			fault.ErrInvalidConfig, MinPassphraseLength, MaxPassphraseLength, n)
	}
	return nil
}

// StationStatus describes one station associated to our access point
type StationStatus struct {
	MAC       net.HardwareAddr
	Signal    int // dBm
	Connected time.Duration
}

// Status is a snapshot of the interface for introspection
type Status struct {
	Interface string
	Mode      string
	Up        bool
	SSID      string
	BSSID     string
	Frequency int // MHz
	Signal    int // dBm
	Stations  []StationStatus
}

// Stack is the Wi-Fi network stack. Requests return once issued; outcomes
// arrive on Events.
type Stack interface {
	Connect(ctx context.Context, creds Credentials) error
	SetMode(ctx context.Context, mode Mode) error
	SetChannel(ctx context.Context, channel int) error
	SetRegDomain(ctx context.Context, country string) error
	EnableTxInjection(ctx context.Context, enable bool) error
	EnableAP(ctx context.Context, cfg APConfig) error
	Status(ctx context.Context) (Status, error)
	InterfaceUp(ctx context.Context) (bool, error)
	Events() <-chan Event
	Close() error
}

// Handler consumes stack events
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

// Dispatch delivers events to every handler in order until ctx is done or
// events is closed. Handlers run on the dispatch goroutine.
func Dispatch(ctx context.Context, events <-chan Event, logger *zap.Logger, handlers ...Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logger.Debug("stack event", zap.Stringer("event", ev))
			for _, h := range handlers {
				h.Handle(ctx, ev)
			}
		}
	}
}

// upPollInterval is how often WaitInterfaceUp checks the interface
const upPollInterval = 50 * time.Millisecond

// WaitInterfaceUp polls s until its interface is up. It fails with
// fault.ErrTimeout after timeout.
func WaitInterfaceUp(ctx context.Context, s Stack, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(upPollInterval)
	defer ticker.Stop()

	for {
		up, err := s.InterfaceUp(ctx)
		if err != nil {
			return fmt.Errorf("interface state: %w", err)
		}
		if up {
			return nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w: interface not up after %v", fault.ErrTimeout, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ChannelFrequency converts a 2.4 or 5 GHz channel number to MHz
func ChannelFrequency(channel int) int {
	switch {
	case channel == 14:
		return 2484
	case channel >= 1 && channel <= 13:
		return 2407 + channel*5
	case channel >= 32 && channel <= 177:
		return 5000 + channel*5
	default:
		return 0
	}
}

// FrequencyChannel converts MHz to a channel number, 0 if unknown
func FrequencyChannel(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq <= 2472:
		return (freq - 2407) / 5
	case freq >= 5160 && freq <= 5885:
		return (freq - 5000) / 5
	default:
		return 0
	}
}
