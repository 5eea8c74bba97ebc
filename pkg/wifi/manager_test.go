// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"testing/synctest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Thermoquad/strobe/internal/metrics"
	"github.com/Thermoquad/strobe/pkg/fault"
	"github.com/Thermoquad/strobe/pkg/netstack"
)

func testConfig() Config {
	return Config{
		Credentials:    netstack.Credentials{SSID: "lab", Passphrase: "password"},
		MaxRetries:     60,
		AttemptTimeout: 10 * time.Second,
		Backoff:        time.Second,
	}
}

// neverSim returns a simulated stack whose attempts never complete
func neverSim(t *testing.T) *netstack.Sim {
	cfg := netstack.DefaultSimConfig()
	cfg.FailAttempts = 1 << 30
	return netstack.NewSim(cfg, zaptest.NewLogger(t))
}

// startDispatch routes sim events to m until the test bubble ends
func startDispatch(t *testing.T, sim *netstack.Sim, m *Manager) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go netstack.Dispatch(ctx, sim.Events(), zaptest.NewLogger(t), m)
	return func() {
		cancel()
		sim.Close()
	}
}

// ============================================================
// State machine
// ============================================================

func TestManager_InitiateTransitions(t *testing.T) {
	sim := neverSim(t)
	defer sim.Close()
	m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	if m.State() != StateDisconnected {
		t.Fatalf("initial state = %v", m.State())
	}

	if err := m.Initiate(ctx); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if m.State() != StateConnecting {
		t.Errorf("state = %v, want CONNECTING", m.State())
	}
	if err := m.Initiate(ctx); !errors.Is(err, ErrAlreadyConnecting) {
		t.Errorf("second Initiate err = %v, want ErrAlreadyConnecting", err)
	}

	m.HandleLinkResult(true, netstack.StatusSuccess)
	if m.State() != StateConnected || m.Retries() != 0 {
		t.Errorf("state/retries = %v/%d, want CONNECTED/0", m.State(), m.Retries())
	}
	if err := m.Initiate(ctx); err != nil {
		t.Errorf("Initiate while connected: %v", err)
	}
	if sim.Attempts() != 1 {
		t.Errorf("stack Connect calls = %d, want 1", sim.Attempts())
	}
}

func TestManager_FailedThenRetry(t *testing.T) {
	sim := neverSim(t)
	defer sim.Close()
	m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	m.Initiate(ctx)
	m.HandleLinkResult(false, netstack.StatusWrongPassword)
	if m.State() != StateFailed || m.Retries() != 1 {
		t.Errorf("state/retries = %v/%d, want FAILED/1", m.State(), m.Retries())
	}

	if err := m.Initiate(ctx); err != nil {
		t.Fatalf("Initiate after failure: %v", err)
	}
	if m.State() != StateConnecting {
		t.Errorf("state = %v, want CONNECTING", m.State())
	}

	m.HandleLinkResult(true, netstack.StatusSuccess)
	if m.Retries() != 0 {
		t.Errorf("retries after success = %d, want 0", m.Retries())
	}
}

func TestManager_RetriesSaturate(t *testing.T) {
	sim := neverSim(t)
	defer sim.Close()
	cfg := testConfig()
	cfg.MaxRetries = 2
	m := NewManager(sim, cfg, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		m.Initiate(context.Background())
		m.HandleLinkResult(false, netstack.StatusFail)
	}
	if m.Retries() != 2 {
		t.Errorf("retries = %d, want 2", m.Retries())
	}
}

func TestManager_HandleDisconnect(t *testing.T) {
	sim := neverSim(t)
	defer sim.Close()
	m := NewManager(sim, testConfig(), zaptest.NewLogger(t))

	m.Initiate(context.Background())
	m.HandleDisconnect()
	if m.State() != StateConnecting {
		t.Errorf("unconfirmed disconnect: state = %v, want CONNECTING", m.State())
	}

	m.HandleLinkResult(true, netstack.StatusSuccess)
	m.HandleAddress(netip.MustParseAddr("192.168.1.50"))
	m.HandleDisconnect()
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", m.State())
	}
	if m.Address().IsValid() {
		t.Errorf("address kept after disconnect: %v", m.Address())
	}
}

func TestManager_FailureReasonLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sim := neverSim(t)
	defer sim.Close()
	m := NewManager(sim, testConfig(), zap.New(core))

	m.Handle(context.Background(), netstack.Event{Kind: netstack.EventLinkFailed, Code: netstack.StatusWrongPassword})

	entries := logs.FilterMessage("connection failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure log entries, want 1", len(entries))
	}
	if reason := entries[0].ContextMap()["reason"]; reason != "wrong password" {
		t.Errorf("reason = %v, want wrong password", reason)
	}
}

func TestReason(t *testing.T) {
	tests := map[int]string{
		netstack.StatusSuccess:       "success",
		netstack.StatusFail:          "failure",
		netstack.StatusWrongPassword: "wrong password",
		netstack.StatusTimeout:       "timeout",
		netstack.StatusNotFound:      "AP not found",
		42:                           "unknown (42)",
	}
	for code, want := range tests {
		if got := Reason(code); got != want {
			t.Errorf("Reason(%d) = %q, want %q", code, got, want)
		}
	}
}

// ============================================================
// Waiting
// ============================================================

func TestWaitConnected_AlreadyConnected(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sim := neverSim(t)
		defer sim.Close()
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
		m.HandleLinkResult(true, netstack.StatusSuccess)

		start := time.Now()
		if err := m.WaitConnected(context.Background(), time.Minute); err != nil {
			t.Fatalf("WaitConnected: %v", err)
		}
		if time.Since(start) != 0 {
			t.Errorf("waited %v, want 0", time.Since(start))
		}
	})
}

func TestWaitConnected_Timeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sim := neverSim(t)
		defer sim.Close()
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
		m.Initiate(context.Background())

		err := m.WaitConnected(context.Background(), 5*time.Second)
		if !errors.Is(err, fault.ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
	})
}

func TestWaitConnected_AfterLinkFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sim := neverSim(t)
		defer sim.Close()
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))

		m.Initiate(context.Background())
		m.HandleLinkResult(true, netstack.StatusSuccess)
		m.HandleAddress(netip.MustParseAddr("192.168.1.100"))
		m.HandleLinkResult(false, netstack.StatusFail)
		if m.Address().IsValid() {
			t.Errorf("address %v kept after the link failed", m.Address())
		}

		if err := m.Initiate(context.Background()); err != nil {
			t.Fatalf("Initiate: %v", err)
		}
		err := m.WaitConnected(context.Background(), 5*time.Second)
		if !errors.Is(err, fault.ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
		if m.State() != StateConnecting {
			t.Errorf("state = %v, want CONNECTING", m.State())
		}
	})
}

func TestConnectWithRetry_AfterLinkFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sim := neverSim(t)
		defer sim.Close()
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))

		m.Initiate(context.Background())
		m.HandleLinkResult(true, netstack.StatusSuccess)
		m.HandleLinkResult(false, netstack.StatusFail)

		err := m.ConnectWithRetry(context.Background(), 2, time.Second)
		if !errors.Is(err, fault.ErrExhaustedRetries) {
			t.Errorf("err = %v, want ErrExhaustedRetries", err)
		}
	})
}

func TestWaitAddress(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sim := netstack.NewSim(netstack.DefaultSimConfig(), zaptest.NewLogger(t))
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
		defer startDispatch(t, sim, m)()

		if err := m.ConnectWithRetry(context.Background(), 3, 10*time.Second); err != nil {
			t.Fatalf("ConnectWithRetry: %v", err)
		}
		addr, err := m.WaitAddress(context.Background(), 30*time.Second)
		if err != nil {
			t.Fatalf("WaitAddress: %v", err)
		}
		if addr != netip.MustParseAddr("192.168.1.100") {
			t.Errorf("addr = %v", addr)
		}
	})
}

// ============================================================
// ConnectWithRetry
// ============================================================

func TestConnectWithRetry_Exhausted(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sim := neverSim(t)
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
		defer startDispatch(t, sim, m)()

		before := testutil.ToFloat64(metrics.ConnectAttempts)
		start := time.Now()

		err := m.ConnectWithRetry(context.Background(), 3, 10*time.Second)
		if !errors.Is(err, fault.ErrExhaustedRetries) {
			t.Fatalf("err = %v, want ErrExhaustedRetries", err)
		}
		if sim.Attempts() != 3 {
			t.Errorf("stack Connect calls = %d, want 3", sim.Attempts())
		}
		if elapsed := time.Since(start); elapsed != 32*time.Second {
			t.Errorf("elapsed = %v, want 32s (3 timeouts + 2 backoffs)", elapsed)
		}
		if m.State() != StateFailed || m.Retries() != 3 {
			t.Errorf("state/retries = %v/%d, want FAILED/3", m.State(), m.Retries())
		}
		if got := testutil.ToFloat64(metrics.ConnectAttempts) - before; got != 3 {
			t.Errorf("attempt counter delta = %v, want 3", got)
		}
	})
}

func TestConnectWithRetry_SecondAttempt(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		cfg := netstack.DefaultSimConfig()
		cfg.FailAttempts = 1
		sim := netstack.NewSim(cfg, zaptest.NewLogger(t))
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
		defer startDispatch(t, sim, m)()

		start := time.Now()
		if err := m.ConnectWithRetry(context.Background(), 3, 10*time.Second); err != nil {
			t.Fatalf("ConnectWithRetry: %v", err)
		}
		if sim.Attempts() != 2 {
			t.Errorf("stack Connect calls = %d, want 2", sim.Attempts())
		}
		if elapsed := time.Since(start); elapsed != 11*time.Second+cfg.AssocDelay {
			t.Errorf("elapsed = %v", elapsed)
		}
		if m.State() != StateConnected || m.Retries() != 0 {
			t.Errorf("state/retries = %v/%d, want CONNECTED/0", m.State(), m.Retries())
		}
	})
}

func TestConnectWithRetry_FailureEventShortensAttempt(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		cfg := netstack.DefaultSimConfig()
		cfg.FailAttempts = 1
		cfg.FailCode = netstack.StatusNotFound
		sim := netstack.NewSim(cfg, zaptest.NewLogger(t))
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
		defer startDispatch(t, sim, m)()

		start := time.Now()
		if err := m.ConnectWithRetry(context.Background(), 3, 10*time.Second); err != nil {
			t.Fatalf("ConnectWithRetry: %v", err)
		}
		want := cfg.AssocDelay + time.Second + cfg.AssocDelay
		if elapsed := time.Since(start); elapsed != want {
			t.Errorf("elapsed = %v, want %v", elapsed, want)
		}
	})
}

func TestConnectWithRetry_Cancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sim := neverSim(t)
		m := NewManager(sim, testConfig(), zaptest.NewLogger(t))
		defer startDispatch(t, sim, m)()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := m.ConnectWithRetry(ctx, 3, 10*time.Second)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
	})
}
