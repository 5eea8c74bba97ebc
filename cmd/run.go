// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/internal/config"
	"github.com/Thermoquad/strobe/internal/metrics"
	"github.com/Thermoquad/strobe/pkg/exchange"
	"github.com/Thermoquad/strobe/pkg/frame"
	"github.com/Thermoquad/strobe/pkg/indicator"
	"github.com/Thermoquad/strobe/pkg/netstack"
	"github.com/Thermoquad/strobe/pkg/session"
	"github.com/Thermoquad/strobe/pkg/station"
	"github.com/Thermoquad/strobe/pkg/wifi"
)

// simPipeDepth bounds the loopback used with --simulate
const simPipeDepth = 256

// probe is one configured device: stack, trackers, indicator, and session
type probe struct {
	cfg    *config.Config
	role   session.Role
	ptype  session.PacketType
	rxMode session.RXMode

	stack    netstack.Stack
	wifi     *wifi.Manager
	stations *station.Registry
	trigger  *indicator.Trigger
	ctrl     *session.Controller
	seq      *session.Sequencer

	bridge     Connection
	bridgeInfo string
	pipe       *exchange.Pipe // loopback transport in simulate mode
}

// newProbe assembles every component for cfg. The caller must Close it.
func newProbe(cfg *config.Config) (*probe, error) {
	role, err := session.ParseRole(cfg.Device.Role)
	if err != nil {
		return nil, err
	}
	ptype, err := session.ParsePacketType(cfg.Test.PacketType)
	if err != nil {
		return nil, err
	}
	rxMode, err := session.ParseRXMode(cfg.RX.Mode)
	if err != nil {
		return nil, err
	}
	p := &probe{cfg: cfg, role: role, ptype: ptype, rxMode: rxMode}

	if role == session.RoleRX && ptype == session.PacketUDP && rxMode == session.RXSoftAP && cfg.SoftAP.Passphrase == "" {
		if cfg.Simulate {
			cfg.SoftAP.Passphrase = "simulated"
		} else if cfg.SoftAP.Passphrase, err = GetSecret(passphraseEnv, "Access point passphrase"); err != nil {
			return nil, err
		}
	}

	if cfg.Simulate {
		p.stack = netstack.NewSim(netstack.DefaultSimConfig(), logger.Named("sim"))
		p.pipe = exchange.NewPipe(simPipeDepth, exchange.DefaultReadTimeout)
	} else {
		host, err := netstack.NewHost(netstack.HostConfig{Interface: cfg.WiFi.Interface}, logger.Named("netstack"))
		if err != nil {
			return nil, err
		}
		p.stack = host
	}

	p.bridge, p.bridgeInfo, err = OpenBridge(cfg.Indicator)
	if err != nil {
		p.stack.Close()
		return nil, err
	}
	var driver indicator.Driver = indicator.NewLogDriver(logger.Named("indicator"))
	if p.bridge != nil {
		driver = indicator.Tee(driver, indicator.NewBridgeDriver(p.bridge))
	}
	p.trigger = indicator.NewTrigger(driver, cfg.Indicator.Pulse, logger.Named("indicator"))

	p.wifi = wifi.NewManager(p.stack, wifi.Config{
		Credentials:    netstack.Credentials{SSID: cfg.WiFi.SSID, Passphrase: cfg.WiFi.Passphrase},
		MaxRetries:     cfg.WiFi.MaxRetries,
		AttemptTimeout: cfg.WiFi.AttemptTimeout,
		Backoff:        cfg.WiFi.Backoff,
	}, logger.Named("wifi"))

	base, _ := netip.ParseAddr(cfg.SoftAP.AddressBase)
	p.stations = station.NewRegistry(station.Config{
		Capacity:    cfg.Station.Capacity,
		Base:        base,
		SettleDelay: cfg.SoftAP.SettleDelay,
	}, logger.Named("station"))

	p.ctrl = session.New(session.Options{
		Role:         role,
		PacketType:   ptype,
		Duration:     cfg.Test.Duration,
		Interval:     cfg.Test.Interval,
		Codec:        frame.NewCodec(frame.Options{Rate: cfg.Raw.Rate, Mode: cfg.Raw.Mode, Queue: cfg.Raw.Queue, Source: frame.DefaultSource}),
		OpenSender:   p.openSender,
		OpenReceiver: p.openReceiver,
	}, p.trigger, logger.Named("session"))

	channel := 0
	if cfg.Raw.NonConnected || rxMode == session.RXMonitor {
		channel = cfg.Raw.Channel
	}
	seqCfg := session.SequencerConfig{
		Role:       role,
		PacketType: ptype,
		RXMode:     rxMode,
		Injection:  cfg.Raw.Injection,
		Channel:    channel,
		RegDomain:  cfg.WiFi.RegDomain,
		AP: netstack.APConfig{
			SSID:       cfg.SoftAP.SSID,
			Passphrase: cfg.SoftAP.Passphrase,
			Channel:    cfg.Raw.Channel,
		},
		MaxAttempts:    cfg.WiFi.MaxRetries,
		AttemptTimeout: cfg.WiFi.AttemptTimeout,
	}
	if role == session.RoleTX && ptype == session.PacketUDP && !cfg.Simulate {
		target := cfg.TX.Target
		seqCfg.Preflight = func(ctx context.Context) error {
			stats, err := pingTarget(ctx, target, 3, 3*time.Second)
			if err != nil {
				return err
			}
			logger.Info("target reachable",
				zap.String("target", target),
				zap.Duration("avg_rtt", stats.AvgRtt),
				zap.Float64("loss_pct", stats.PacketLoss))
			return nil
		}
	}
	p.seq = &session.Sequencer{
		Stack:      p.stack,
		WiFi:       p.wifi,
		Stations:   p.stations,
		Controller: p.ctrl,
		Config:     seqCfg,
		Logger:     logger.Named("sequencer"),
	}
	return p, nil
}

func (p *probe) openSender(ctx context.Context) (exchange.Sender, error) {
	if p.pipe != nil {
		return p.pipe.Sender(), nil
	}
	if p.ptype == session.PacketRaw {
		s, err := exchange.OpenRaw(p.cfg.WiFi.Interface, exchange.DefaultReadTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := exchange.DialUDP(p.cfg.TX.Target, p.cfg.Test.Port)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *probe) openReceiver(ctx context.Context) (exchange.Receiver, error) {
	if p.pipe != nil {
		return p.pipe, nil
	}
	if p.ptype == session.PacketRaw {
		r, err := exchange.OpenRaw(p.cfg.WiFi.Interface, exchange.DefaultReadTimeout)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := exchange.ListenUDP(p.cfg.Test.Port, exchange.DefaultReadTimeout)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Run serves metrics, watches bridge buttons, feeds the simulated link,
// and runs the sequencer until ctx is done or setup fails
func (p *probe) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if addr := p.cfg.Metrics.Listen; addr != "" {
		wg.Go(func() {
			if err := metrics.Serve(ctx, addr, logger.Named("metrics")); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		})
	}

	// Buttons restart transmit sessions only
	if p.bridge != nil && p.role == session.RoleTX {
		wg.Go(func() {
			err := indicator.WatchButtons(ctx, p.bridge, p.ctrl.RequestRestart)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("bridge button watcher stopped", zap.Error(err))
			}
		})
	}

	if p.pipe != nil {
		if p.role == session.RoleTX {
			wg.Go(func() { p.simDrain(ctx) })
		} else {
			wg.Go(func() { p.simFeed(ctx) })
		}
	}

	logger.Info("probe starting",
		zap.String("role", string(p.role)),
		zap.String("type", string(p.ptype)),
		zap.String("bridge", p.bridgeInfo),
		zap.Bool("simulate", p.cfg.Simulate))

	err := p.seq.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.role, p.ptype, err)
	}
	return nil
}

// simDrain plays the remote receiver for a simulated transmitter
func (p *probe) simDrain(ctx context.Context) {
	var stats frame.Stats
	buf := make([]byte, frame.Size)
	for ctx.Err() == nil {
		n, err := p.pipe.Receive(buf)
		if err != nil {
			continue
		}
		if p.ptype == session.PacketRaw {
			frame.Classify(buf[frame.PreambleSize:n], &stats)
			logger.Debug("simulated receiver", zap.Stringer("stats", &stats))
		} else {
			logger.Debug("simulated receiver", zap.ByteString("payload", buf[:n]))
		}
	}
}

// simFeed plays the remote transmitter for a simulated receiver
func (p *probe) simFeed(ctx context.Context) {
	codec := frame.NewCodec(frame.DefaultOptions())
	ticker := time.NewTicker(p.cfg.Test.Interval)
	defer ticker.Stop()

	start := time.Now()
	for seq := uint32(0); ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var b []byte
		switch {
		case p.ptype == session.PacketUDP:
			b = []byte(exchange.Payload(seq, time.Since(start).Milliseconds()))
		case p.rxMode == session.RXMonitor:
			b = append(make([]byte, frame.RxHeaderSize), codec.Build()[frame.PreambleSize:]...)
		default:
			b = codec.Build()[frame.PreambleSize:]
		}
		if err := p.pipe.Send(b); err != nil {
			logger.Debug("simulated transmitter", zap.Error(err))
		}
	}
}

// Close releases everything newProbe opened
func (p *probe) Close() {
	p.trigger.Close()
	if p.pipe != nil {
		p.pipe.Close()
	}
	if p.bridge != nil {
		p.bridge.Close()
	}
	p.stack.Close()
}

// runProbe loads the configuration for role and runs the probe in the
// foreground or behind the dashboard until interrupted
func runProbe(cmd *cobra.Command, role string, bindings map[string]string, tui bool) error {
	v.Set("device.role", role)
	cfg, err := loadConfig(cmd, bindings)
	if err != nil {
		return err
	}

	var lines logLines
	if tui {
		lines = make(logLines, logBacklog)
		logger = dashboardLogger(lines)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newProbe(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if tui {
		title := fmt.Sprintf("STROBE - %s", strings.ToUpper(role))
		return runDashboard(ctx, p, title, lines)
	}
	return p.Run(ctx)
}
