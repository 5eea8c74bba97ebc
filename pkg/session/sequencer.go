// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/pkg/fault"
	"github.com/Thermoquad/strobe/pkg/netstack"
	"github.com/Thermoquad/strobe/pkg/station"
	"github.com/Thermoquad/strobe/pkg/wifi"
)

// Setup timeouts
const (
	DefaultUpTimeout      = 30 * time.Second
	DefaultAddressTimeout = 30 * time.Second
)

// SequencerConfig selects the setup path run before the session
type SequencerConfig struct {
	Role       Role
	PacketType PacketType
	RXMode     RXMode

	Injection bool   // raw transmit: enable frame injection
	Channel   int    // raw: fixed channel, 0 keeps the current one
	RegDomain string // softap and monitor
	AP        netstack.APConfig

	MaxAttempts    int
	AttemptTimeout time.Duration
	UpTimeout      time.Duration
	AddressTimeout time.Duration

	// Preflight runs after a UDP transmitter has an address and before the
	// first session. A failure is logged, not fatal.
	Preflight func(ctx context.Context) error
}

// Sequencer brings the stack into the state a role needs and then hands
// over to the controller
type Sequencer struct {
	Stack      netstack.Stack
	WiFi       *wifi.Manager
	Stations   *station.Registry
	Controller *Controller
	Config     SequencerConfig
	Logger     *zap.Logger
}

// Run performs setup for the configured role and runs its session loop
// until ctx is done. Setup errors are returned.
func (s *Sequencer) Run(ctx context.Context) error {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := s.Config
	if cfg.UpTimeout <= 0 {
		cfg.UpTimeout = DefaultUpTimeout
	}
	if cfg.AddressTimeout <= 0 {
		cfg.AddressTimeout = DefaultAddressTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var handlers []netstack.Handler
	if s.WiFi != nil {
		handlers = append(handlers, s.WiFi)
	}
	if s.Stations != nil {
		handlers = append(handlers, s.Stations)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		netstack.Dispatch(ctx, s.Stack.Events(), log.Named("events"), handlers...)
	}()
	defer func() {
		cancel()
		<-done
		if s.Stations != nil {
			s.Stations.Wait()
		}
	}()

	log.Info("starting",
		zap.String("role", string(cfg.Role)),
		zap.String("type", string(cfg.PacketType)),
		zap.String("rx_mode", string(cfg.RXMode)))

	switch cfg.Role {
	case RoleTX:
		return s.runTX(ctx, cfg, log)
	case RoleRX:
		return s.runRX(ctx, cfg, log)
	}
	return fmt.Errorf("%w: role %q", fault.ErrInvalidConfig, cfg.Role)
}

func (s *Sequencer) runTX(ctx context.Context, cfg SequencerConfig, log *zap.Logger) error {
	switch cfg.PacketType {
	case PacketRaw:
		if err := s.Stack.SetMode(ctx, netstack.ModeStation); err != nil {
			return fmt.Errorf("set station mode: %w", err)
		}
		if cfg.Injection {
			if err := s.Stack.EnableTxInjection(ctx, true); err != nil {
				return fmt.Errorf("enable tx injection: %w", err)
			}
		}
		if cfg.Channel > 0 {
			if err := s.Stack.SetChannel(ctx, cfg.Channel); err != nil {
				return fmt.Errorf("set channel: %w", err)
			}
		}
		if err := netstack.WaitInterfaceUp(ctx, s.Stack, cfg.UpTimeout); err != nil {
			return err
		}

	case PacketUDP:
		if err := s.connect(ctx, cfg, log); err != nil {
			return err
		}
		if cfg.Preflight != nil {
			if err := cfg.Preflight(ctx); err != nil {
				log.Warn("preflight failed", zap.Error(err))
			}
		}

	default:
		return fmt.Errorf("%w: packet type %q", fault.ErrInvalidConfig, cfg.PacketType)
	}

	return s.Controller.RunTX(ctx)
}

func (s *Sequencer) runRX(ctx context.Context, cfg SequencerConfig, log *zap.Logger) error {
	switch {
	case cfg.PacketType == PacketUDP && cfg.RXMode == RXStation:
		if err := s.connect(ctx, cfg, log); err != nil {
			return err
		}

	case cfg.PacketType == PacketUDP && cfg.RXMode == RXSoftAP:
		if err := cfg.AP.Validate(); err != nil {
			return err
		}
		if s.Stations == nil {
			return fmt.Errorf("%w: access-point mode needs a station registry", fault.ErrInvalidConfig)
		}
		if cfg.RegDomain != "" {
			if err := s.Stack.SetRegDomain(ctx, cfg.RegDomain); err != nil {
				return fmt.Errorf("set regulatory domain: %w", err)
			}
		}
		if err := s.Stack.EnableAP(ctx, cfg.AP); err != nil {
			return fmt.Errorf("enable access point: %w", err)
		}
		log.Info("access point up, waiting for a station", zap.String("ssid", cfg.AP.SSID))
		select {
		case <-s.Stations.FirstStation():
		case <-ctx.Done():
			return nil
		}

	case cfg.PacketType == PacketRaw && cfg.RXMode == RXMonitor:
		if err := s.Stack.SetMode(ctx, netstack.ModeMonitor); err != nil {
			return fmt.Errorf("set monitor mode: %w", err)
		}
		if cfg.RegDomain != "" {
			if err := s.Stack.SetRegDomain(ctx, cfg.RegDomain); err != nil {
				return fmt.Errorf("set regulatory domain: %w", err)
			}
		}
		if cfg.Channel > 0 {
			if err := s.Stack.SetChannel(ctx, cfg.Channel); err != nil {
				return fmt.Errorf("set channel: %w", err)
			}
		}
		if err := netstack.WaitInterfaceUp(ctx, s.Stack, cfg.UpTimeout); err != nil {
			return err
		}
		s.Controller.opts.StripRxHeader = true

	case cfg.PacketType == PacketRaw && cfg.RXMode == RXPromiscuous:
		if err := s.connectLink(ctx, cfg); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %s receive in %s mode", fault.ErrInvalidConfig, cfg.PacketType, cfg.RXMode)
	}

	return s.Controller.RunRX(ctx)
}

// connect associates and waits for an address
func (s *Sequencer) connect(ctx context.Context, cfg SequencerConfig, log *zap.Logger) error {
	if err := s.connectLink(ctx, cfg); err != nil {
		return err
	}
	addr, err := s.WiFi.WaitAddress(ctx, cfg.AddressTimeout)
	if err != nil {
		return fmt.Errorf("wait for address: %w", err)
	}
	log.Info("address bound", zap.Stringer("addr", addr))
	return nil
}

func (s *Sequencer) connectLink(ctx context.Context, cfg SequencerConfig) error {
	if s.WiFi == nil {
		return fmt.Errorf("%w: station mode needs a connection manager", fault.ErrInvalidConfig)
	}
	if err := s.WiFi.ConnectWithRetry(ctx, cfg.MaxAttempts, cfg.AttemptTimeout); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}
