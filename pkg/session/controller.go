// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session runs timed transmit sessions and the unbounded receive
// loop, and sequences the setup each role needs before its session starts.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/strobe/internal/metrics"
	"github.com/Thermoquad/strobe/pkg/exchange"
	"github.com/Thermoquad/strobe/pkg/frame"
	"github.com/Thermoquad/strobe/pkg/indicator"
)

// rxErrorBackoff is the pause after a hard receive error
const rxErrorBackoff = 100 * time.Millisecond

// rxBufferSize fits a full 802.11 frame plus receive metadata
const rxBufferSize = 2048

// Options configures a Controller
type Options struct {
	Role       Role
	PacketType PacketType
	Duration   time.Duration
	Interval   time.Duration

	// StripRxHeader removes monitor-mode receive metadata before classifying
	StripRxHeader bool

	// Codec builds raw frames; required for raw transmit
	Codec *frame.Codec

	// OpenSender and OpenReceiver create the transport for each session
	OpenSender   func(ctx context.Context) (exchange.Sender, error)
	OpenReceiver func(ctx context.Context) (exchange.Receiver, error)
}

// Report summarizes a finished transmit session
type Report struct {
	ID      uuid.UUID
	Role    Role
	Packets uint32
	Errors  uint32
	Started time.Time
	Elapsed time.Duration
	Stopped bool // ended by a stop request rather than the deadline
}

// Snapshot is the live view used by the dashboard
type Snapshot struct {
	ID         uuid.UUID
	State      State
	Role       Role
	PacketType PacketType
	Packets    uint32
	Errors     uint32
	Started    time.Time
	Elapsed    time.Duration
	Duration   time.Duration
	Stats      frame.Stats
	Sessions   int
	Last       *Report
}

// Controller owns the active session. One session runs at a time.
type Controller struct {
	opts    Options
	trigger *indicator.Trigger
	logger  *zap.Logger

	stopRequested atomic.Bool
	restart       chan struct{} // binary semaphore

	mu       sync.Mutex
	state    State
	id       uuid.UUID
	packets  uint32
	errors   uint32
	started  time.Time
	stopWake chan struct{}
	stats    frame.Stats
	sessions int
	last     *Report

	errLog rate.Sometimes
}

// New creates an idle controller
func New(opts Options, trigger *indicator.Trigger, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if trigger == nil {
		trigger = indicator.NewTrigger(indicator.NewLogDriver(logger), indicator.DefaultPulse, logger)
	}
	return &Controller{
		opts:     opts,
		trigger:  trigger,
		logger:   logger,
		restart:  make(chan struct{}, 1),
		stopWake: make(chan struct{}),
		errLog:   rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// RequestRestart stops a running transmit session and schedules a new one
// once the controller is idle. Requests coalesce. A receiver ignores it.
func (c *Controller) RequestRestart() {
	if c.opts.Role != RoleTX {
		c.logger.Debug("restart ignored by receiver")
		return
	}

	c.mu.Lock()
	running := c.state != StateIdle
	c.mu.Unlock()

	if running {
		c.logger.Info("restart requested, stopping current session")
		c.requestStop()
	} else {
		c.logger.Info("restart requested")
	}

	select {
	case c.restart <- struct{}{}:
	default:
	}
}

// Stop ends a running transmit session without scheduling another. A
// receiver runs until its context ends and ignores it.
func (c *Controller) Stop() {
	c.requestStop()
}

func (c *Controller) requestStop() {
	if c.opts.Role != RoleTX {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}
	c.stopRequested.Store(true)
	c.state = StateStopping
	close(c.stopWake)
}

// State returns the controller state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the live session view
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ID:         c.id,
		State:      c.state,
		Role:       c.opts.Role,
		PacketType: c.opts.PacketType,
		Packets:    c.packets,
		Errors:     c.errors,
		Started:    c.started,
		Duration:   c.opts.Duration,
		Stats:      c.stats,
		Sessions:   c.sessions,
		Last:       c.last,
	}
	if c.state != StateIdle && !c.started.IsZero() {
		s.Elapsed = time.Since(c.started)
	}
	return s
}

// LastReport returns the most recent finished transmit session
func (c *Controller) LastReport() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

// begin resets per-session state and enters Running
func (c *Controller) begin() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = uuid.New()
	c.packets = 0
	c.errors = 0
	c.started = time.Now()
	c.stopRequested.Store(false)
	c.stopWake = make(chan struct{})
	c.state = StateRunning
	c.sessions++
	metrics.Sessions.WithLabelValues(string(c.opts.Role)).Inc()
	return c.id
}

// ============================================================
// Transmit
// ============================================================

// RunTX runs a transmit session immediately, then one more per restart
// request, until ctx is done. Transport setup errors end the loop.
func (c *Controller) RunTX(ctx context.Context) error {
	for {
		if _, err := c.RunTXSession(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.restart:
		}
	}
}

// RunTXSession sends one packet per interval slot until the duration
// elapses or a stop is requested
func (c *Controller) RunTXSession(ctx context.Context) (Report, error) {
	sender, err := c.opts.OpenSender(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("open transmit transport: %w", err)
	}
	defer sender.Close()

	id := c.begin()
	c.mu.Lock()
	start, wake := c.started, c.stopWake
	c.mu.Unlock()

	log := c.logger.With(zap.Stringer("session", id))
	log.Info("tx session started",
		zap.String("type", string(c.opts.PacketType)),
		zap.Duration("duration", c.opts.Duration),
		zap.Duration("interval", c.opts.Interval))

	deadline := start.Add(c.opts.Duration)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

loop:
	for slot := 1; ; slot++ {
		if c.stopRequested.Load() || ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}

		c.trigger.Pulse(indicator.ChannelTX)
		if err := sender.Send(c.payload(start)); err != nil {
			c.mu.Lock()
			c.errors++
			c.mu.Unlock()
			metrics.SendErrors.Inc()
			log.Warn("send failed", zap.Error(err))
		} else {
			c.mu.Lock()
			c.packets++
			c.mu.Unlock()
			metrics.PacketsSent.Inc()
		}

		next := start.Add(time.Duration(slot) * c.opts.Interval)
		if next.After(deadline) {
			next = deadline
		}
		timer.Reset(time.Until(next))
		select {
		case <-timer.C:
		case <-wake:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	return c.finishTX(log), nil
}

func (c *Controller) payload(start time.Time) []byte {
	if c.opts.PacketType == PacketRaw {
		return c.opts.Codec.Build()
	}
	c.mu.Lock()
	seq := c.packets
	c.mu.Unlock()
	return []byte(exchange.Payload(seq, time.Since(start).Milliseconds()))
}

func (c *Controller) finishTX(log *zap.Logger) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := Report{
		ID:      c.id,
		Role:    c.opts.Role,
		Packets: c.packets,
		Errors:  c.errors,
		Started: c.started,
		Elapsed: time.Since(c.started),
		Stopped: c.stopRequested.Load(),
	}
	c.last = &r
	c.state = StateIdle

	log.Info("tx session complete",
		zap.Uint32("packets", r.Packets),
		zap.Uint32("errors", r.Errors),
		zap.Duration("elapsed", r.Elapsed),
		zap.Bool("stopped", r.Stopped))
	return r
}

// ============================================================
// Receive
// ============================================================

// RunRX receives until ctx is done. Each received packet pulses the RX
// indicator: every datagram for UDP, only test frames for raw.
func (c *Controller) RunRX(ctx context.Context) error {
	recv, err := c.opts.OpenReceiver(ctx)
	if err != nil {
		return fmt.Errorf("open receive transport: %w", err)
	}
	defer recv.Close()

	id := c.begin()
	c.mu.Lock()
	c.stats.Reset()
	c.mu.Unlock()

	log := c.logger.With(zap.Stringer("session", id))
	log.Info("rx session started", zap.String("type", string(c.opts.PacketType)))

	buf := make([]byte, rxBufferSize)
	for ctx.Err() == nil {
		n, err := recv.Receive(buf)
		switch {
		case err == nil:
			c.handleRX(buf[:n])
		case errors.Is(err, exchange.ErrNoData):
		default:
			metrics.ReceiveErrors.Inc()
			c.errLog.Do(func() { log.Warn("receive failed", zap.Error(err)) })
			select {
			case <-time.After(rxErrorBackoff):
			case <-ctx.Done():
			}
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	stats := c.stats
	c.mu.Unlock()

	log.Info("rx session ended",
		zap.Uint32("packets", c.Snapshot().Packets),
		zap.Uint64("frames", stats.Total),
		zap.Uint64("test_frames", stats.Identified))
	return nil
}

func (c *Controller) handleRX(b []byte) {
	if c.opts.PacketType == PacketUDP {
		c.trigger.Pulse(indicator.ChannelRX)
		c.mu.Lock()
		c.packets++
		c.mu.Unlock()
		metrics.PacketsReceived.WithLabelValues("udp").Inc()
		return
	}

	if c.opts.StripRxHeader {
		b = frame.StripRxHeader(b)
	}
	metrics.PacketsReceived.WithLabelValues("frame").Inc()

	c.mu.Lock()
	match := frame.Classify(b, &c.stats)
	if match {
		c.packets++
	}
	c.mu.Unlock()

	if match {
		c.trigger.Pulse(indicator.ChannelRX)
		metrics.PacketsReceived.WithLabelValues("test_frame").Inc()
	}
}
