// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wifi manages the station-mode association to the test network.
//
// The Manager owns the connection state machine. Requests go out through a
// netstack.Stack; results come back as events passed to Handle.
//
//	Disconnected -> Connecting   Initiate
//	Connecting   -> Connected    link success
//	Connecting   -> Failed       link failure or attempt timeout
//	Connected    -> Disconnected link lost
//	Failed       -> Disconnected next Initiate, then straight to Connecting
package wifi

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/internal/metrics"
	"github.com/Thermoquad/strobe/pkg/fault"
	"github.com/Thermoquad/strobe/pkg/netstack"
)

var (
	// ErrAlreadyConnecting is returned by Initiate while an attempt is in progress
	ErrAlreadyConnecting = errors.New("connection attempt already in progress")

	// ErrLinkFailed is returned by WaitConnected when the stack reports a failed attempt
	ErrLinkFailed = errors.New("link failed")
)

// Defaults
const (
	DefaultMaxRetries     = 60
	DefaultAttemptTimeout = 10 * time.Second
	DefaultBackoff        = time.Second
)

// Config holds the credentials and retry policy
type Config struct {
	Credentials    netstack.Credentials
	MaxRetries     int
	AttemptTimeout time.Duration
	Backoff        time.Duration
}

// Manager tracks association state. Safe for concurrent use.
type Manager struct {
	stack  netstack.Stack
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	retries    int
	confirmed  bool
	connected  chan struct{} // closed on entering Connected
	failed     chan struct{} // closed when the current attempt fails
	lastReason int
	addr       netip.Addr
	bound      chan struct{} // closed on the first DHCP bind
}

// NewManager creates a manager in the Disconnected state
func NewManager(stack netstack.Stack, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	metrics.ConnectionState.Set(float64(StateDisconnected))
	return &Manager{
		stack:     stack,
		cfg:       cfg,
		logger:    logger,
		state:     StateDisconnected,
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
		bound:     make(chan struct{}),
	}
}

// setState must be called with mu held
func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state change", zap.Stringer("from", m.state), zap.Stringer("to", s))
	m.state = s
	metrics.ConnectionState.Set(float64(s))
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries returns the failed-attempt counter
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Initiate asks the stack to associate. It is a no-op while connected.
func (m *Manager) Initiate(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting:
		m.mu.Unlock()
		return ErrAlreadyConnecting
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateFailed:
		m.setState(StateDisconnected)
	}
	m.setState(StateConnecting)
	m.confirmed = false
	m.failed = make(chan struct{})
	select {
	case <-m.connected:
		m.connected = make(chan struct{})
	default:
	}
	m.mu.Unlock()

	metrics.ConnectAttempts.Inc()
	m.logger.Info("connecting", zap.String("ssid", m.cfg.Credentials.SSID))

	if err := m.stack.Connect(ctx, m.cfg.Credentials); err != nil {
		m.HandleLinkResult(false, netstack.StatusFail)
		return fmt.Errorf("connect request: %w", err)
	}
	return nil
}

// HandleLinkResult applies the outcome of an association attempt
func (m *Manager) HandleLinkResult(success bool, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.setState(StateConnected)
		m.retries = 0
		m.confirmed = true
		select {
		case <-m.connected:
		default:
			close(m.connected)
		}
		m.logger.Info("connected", zap.String("ssid", m.cfg.Credentials.SSID))
		return
	}

	if m.confirmed {
		// An established link failed: drop it like a disconnect
		m.confirmed = false
		m.connected = make(chan struct{})
		m.addr = netip.Addr{}
		m.bound = make(chan struct{})
	}
	m.setState(StateFailed)
	m.retries = min(m.retries+1, m.cfg.MaxRetries)
	m.lastReason = code
	select {
	case <-m.failed:
	default:
		close(m.failed)
	}
	m.logger.Warn("connection failed",
		zap.Int("status", code),
		zap.String("reason", Reason(code)),
		zap.Int("retries", m.retries))
}

// HandleDisconnect applies a link-lost event. Before the link was ever
// confirmed in this attempt the event is association noise and the
// attempt is considered still in progress.
func (m *Manager) HandleDisconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.confirmed {
		if m.state != StateFailed {
			m.setState(StateConnecting)
		}
		m.logger.Debug("disconnect while still connecting")
		return
	}

	m.confirmed = false
	m.setState(StateDisconnected)
	m.connected = make(chan struct{})
	m.addr = netip.Addr{}
	m.bound = make(chan struct{})
	m.logger.Warn("disconnected")
}

// HandleAddress records the address the stack obtained
func (m *Manager) HandleAddress(addr netip.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addr = addr
	select {
	case <-m.bound:
	default:
		close(m.bound)
	}
	m.logger.Info("address bound", zap.Stringer("addr", addr))
}

// Handle routes a stack event to the matching operation
func (m *Manager) Handle(ctx context.Context, ev netstack.Event) {
	switch ev.Kind {
	case netstack.EventLinkConnected:
		m.HandleLinkResult(true, netstack.StatusSuccess)
	case netstack.EventLinkFailed:
		m.HandleLinkResult(false, ev.Code)
	case netstack.EventDisconnected:
		m.HandleDisconnect()
	case netstack.EventDHCPBound:
		m.HandleAddress(ev.Addr)
	}
}

// WaitConnected blocks until connected, the current attempt fails, timeout
// expires, or ctx is done.
func (m *Manager) WaitConnected(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	connected, failed := m.connected, m.failed
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-connected:
		return nil
	case <-failed:
		m.mu.Lock()
		reason := m.lastReason
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLinkFailed, Reason(reason))
	case <-timer.C:
		return fmt.Errorf("%w: not connected after %v", fault.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAddress blocks until the stack reports an address
func (m *Manager) WaitAddress(ctx context.Context, timeout time.Duration) (netip.Addr, error) {
	m.mu.Lock()
	bound := m.bound
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-bound:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.addr, nil
	case <-timer.C:
		return netip.Addr{}, fmt.Errorf("%w: no address after %v", fault.ErrTimeout, timeout)
	case <-ctx.Done():
		return netip.Addr{}, ctx.Err()
	}
}

// Address returns the bound address, if any
func (m *Manager) Address() netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// attemptTimedOut records a timed-out attempt as failed. It reports false
// if the link came up in the meantime.
func (m *Manager) attemptTimedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateConnected:
		return false
	case StateConnecting:
		m.setState(StateFailed)
		m.retries = min(m.retries+1, m.cfg.MaxRetries)
		m.lastReason = netstack.StatusTimeout
		m.logger.Warn("connection attempt timed out", zap.Int("retries", m.retries))
	}
	return true
}

// ConnectWithRetry makes up to maxAttempts association attempts, each
// bounded by perAttemptTimeout and separated by the configured backoff.
func (m *Manager) ConnectWithRetry(ctx context.Context, maxAttempts int, perAttemptTimeout time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = m.cfg.MaxRetries
	}
	if perAttemptTimeout <= 0 {
		perAttemptTimeout = m.cfg.AttemptTimeout
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		m.logger.Info("connection attempt", zap.Int("attempt", attempt), zap.Int("max", maxAttempts))

		err := m.Initiate(ctx)
		if err == nil || errors.Is(err, ErrAlreadyConnecting) {
			err = m.WaitConnected(ctx, perAttemptTimeout)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, fault.ErrTimeout) && !m.attemptTimedOut() {
				return nil
			}
		}
		m.logger.Debug("attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(m.cfg.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: %d attempts to %q", fault.ErrExhaustedRetries, maxAttempts, m.cfg.Credentials.SSID)
}
