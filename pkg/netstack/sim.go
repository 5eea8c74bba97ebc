// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package netstack

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimConfig scripts the behavior of a simulated stack
type SimConfig struct {
	// AssocDelay is the time from a request to its completion event
	AssocDelay time.Duration

	// UpDelay is how long the interface stays down after a mode change
	UpDelay time.Duration

	// FailAttempts is how many Connect calls fail before one succeeds
	FailAttempts int

	// FailCode, when non-zero, makes failed attempts report EventLinkFailed
	// with this code. Otherwise they never complete.
	FailCode int

	// Lease is the address reported by EventDHCPBound
	Lease netip.Addr
}

// DefaultSimConfig completes every request after 100ms
func DefaultSimConfig() SimConfig {
	return SimConfig{
		AssocDelay: 100 * time.Millisecond,
		UpDelay:    50 * time.Millisecond,
		Lease:      netip.MustParseAddr("192.168.1.100"),
	}
}

// Sim is an in-memory Stack. It models association, DHCP, interface mode
// changes, and stations joining an access point.
type Sim struct {
	cfg    SimConfig
	logger *zap.Logger
	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	attempts  int
	mode      Mode
	up        bool
	linked    bool
	ssid      string
	channel   int
	country   string
	injection bool
	ap        *APConfig
	stations  []net.HardwareAddr
	closed    bool
}

// NewSim creates a simulated stack in station mode with its interface up
func NewSim(cfg SimConfig, logger *zap.Logger) *Sim {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Lease.IsValid() {
		cfg.Lease = DefaultSimConfig().Lease
	}
	return &Sim{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
		mode:    ModeStation,
		up:      true,
		channel: 1,
	}
}

func (s *Sim) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Sim) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case <-s.done:
		default:
			fn()
		}
	})
}

func (s *Sim) Connect(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.ssid = creds.SSID
	s.mu.Unlock()

	s.logger.Debug("simulated connect", zap.String("ssid", creds.SSID), zap.Int("attempt", attempt))

	if attempt <= s.cfg.FailAttempts {
		if s.cfg.FailCode != 0 {
			s.after(s.cfg.AssocDelay, func() {
				s.emit(Event{Kind: EventLinkFailed, Code: s.cfg.FailCode})
			})
		}
		return nil
	}

	s.after(s.cfg.AssocDelay, func() {
		s.mu.Lock()
		s.linked = true
		s.mu.Unlock()
		s.emit(Event{Kind: EventLinkConnected})
		s.after(s.cfg.AssocDelay, func() {
			s.emit(Event{Kind: EventDHCPBound, Addr: s.cfg.Lease})
		})
	})
	return nil
}

func (s *Sim) SetMode(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	s.mode = mode
	s.up = false
	s.mu.Unlock()

	s.after(s.cfg.UpDelay, func() {
		s.mu.Lock()
		s.up = true
		s.mu.Unlock()
		s.emit(Event{Kind: EventInterfaceUp})
	})
	return nil
}

func (s *Sim) SetChannel(ctx context.Context, channel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = channel
	return nil
}

func (s *Sim) SetRegDomain(ctx context.Context, country string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.country = country
	return nil
}

func (s *Sim) EnableTxInjection(ctx context.Context, enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injection = enable
	return nil
}

func (s *Sim) EnableAP(ctx context.Context, cfg APConfig) error {
	s.mu.Lock()
	s.mode = ModeAP
	s.ap = &cfg
	s.ssid = cfg.SSID
	if cfg.Channel > 0 {
		s.channel = cfg.Channel
	}
	s.mu.Unlock()

	s.after(s.cfg.AssocDelay, func() {
		s.emit(Event{Kind: EventAPEnabled})
	})
	return nil
}

func (s *Sim) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Interface: "sim0",
		Mode:      s.mode.String(),
		Up:        s.up,
		Frequency: ChannelFrequency(s.channel),
	}
	if s.linked || s.ap != nil {
		st.SSID = s.ssid
	}
	for _, mac := range s.stations {
		st.Stations = append(st.Stations, StationStatus{MAC: mac})
	}
	return st, nil
}

func (s *Sim) InterfaceUp(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.up, nil
}

func (s *Sim) Events() <-chan Event {
	return s.events
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Attempts returns how many times Connect was called
func (s *Sim) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Channel returns the configured channel
func (s *Sim) Channel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// RegDomain returns the configured regulatory domain
func (s *Sim) RegDomain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.country
}

// Injection reports whether TX injection was enabled
func (s *Sim) Injection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injection
}

// AddStation simulates a station associating to the access point
func (s *Sim) AddStation(mac net.HardwareAddr) {
	s.mu.Lock()
	s.stations = append(s.stations, mac)
	s.mu.Unlock()
	s.emit(Event{Kind: EventStationConnected, MAC: mac})
}

// RemoveStation simulates a station leaving the access point
func (s *Sim) RemoveStation(mac net.HardwareAddr) {
	s.mu.Lock()
	s.stations = slices.DeleteFunc(s.stations, func(m net.HardwareAddr) bool {
		return m.String() == mac.String()
	})
	s.mu.Unlock()
	s.emit(Event{Kind: EventStationDisconnected, MAC: mac})
}

// DropLink simulates losing the association
func (s *Sim) DropLink() {
	s.mu.Lock()
	s.linked = false
	s.mu.Unlock()
	s.emit(Event{Kind: EventDisconnected})
}
