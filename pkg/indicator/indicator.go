// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package indicator drives the TX and RX activity indicators.
//
// A logic analyzer watching the indicator pins timestamps every send and
// every receive; the latency analyzer matches the two edges later.
package indicator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPulse is how long an indicator stays on after a pulse
const DefaultPulse = 50 * time.Millisecond

// Channel identifies an indicator output
type Channel uint8

const (
	ChannelTX Channel = 1 // LED1
	ChannelRX Channel = 2 // LED2
)

func (c Channel) String() string {
	switch c {
	case ChannelTX:
		return "TX"
	case ChannelRX:
		return "RX"
	default:
		return fmt.Sprintf("CH%d", uint8(c))
	}
}

// Driver sets the level of an indicator output
type Driver interface {
	Set(ch Channel, on bool) error
}

// Trigger produces fixed-width pulses on indicator channels. A pulse while
// the channel is already on restarts the off timer; pulses never queue.
// Safe for concurrent use. Driver writes happen outside the bookkeeping
// lock and are serialized per channel, so a slow write on one channel
// never holds up the other.
type Trigger struct {
	mu     sync.Mutex
	driver Driver
	width  time.Duration
	logger *zap.Logger

	io     map[Channel]*sync.Mutex
	timers map[Channel]*time.Timer
	gen    map[Channel]uint64
	count  map[Channel]uint64
	lit    map[Channel]bool
}

// NewTrigger creates a trigger. A non-positive width selects DefaultPulse.
func NewTrigger(driver Driver, width time.Duration, logger *zap.Logger) *Trigger {
	if width <= 0 {
		width = DefaultPulse
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		driver: driver,
		width:  width,
		logger: logger,
		io:     make(map[Channel]*sync.Mutex),
		timers: make(map[Channel]*time.Timer),
		gen:    make(map[Channel]uint64),
		count:  make(map[Channel]uint64),
		lit:    make(map[Channel]bool),
	}
}

// ioLock returns the write lock for ch. t.mu must be held.
func (t *Trigger) ioLock(ch Channel) *sync.Mutex {
	l := t.io[ch]
	if l == nil {
		l = new(sync.Mutex)
		t.io[ch] = l
	}
	return l
}

// Pulse turns ch on and schedules it off after the pulse width, cancelling
// any off already pending for ch.
func (t *Trigger) Pulse(ch Channel) {
	t.mu.Lock()
	t.count[ch]++
	if tm := t.timers[ch]; tm != nil {
		tm.Stop()
		delete(t.timers, ch)
	}
	t.gen[ch]++
	gen := t.gen[ch]
	io := t.ioLock(ch)
	t.mu.Unlock()

	io.Lock()
	defer io.Unlock()

	// A newer pulse owns the channel now
	t.mu.Lock()
	if t.gen[ch] != gen {
		t.mu.Unlock()
		return
	}
	t.lit[ch] = true
	t.mu.Unlock()

	if err := t.driver.Set(ch, true); err != nil {
		t.logger.Debug("indicator on failed", zap.Stringer("channel", ch), zap.Error(err))
	}

	// The off timer starts only once the on level is out
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen[ch] == gen {
		t.timers[ch] = time.AfterFunc(t.width, func() { t.expire(ch, gen) })
	}
}

// expire turns ch off unless a later pulse rescheduled it
func (t *Trigger) expire(ch Channel, gen uint64) {
	t.mu.Lock()
	io := t.ioLock(ch)
	t.mu.Unlock()

	io.Lock()
	defer io.Unlock()

	t.mu.Lock()
	if t.gen[ch] != gen {
		t.mu.Unlock()
		return
	}
	delete(t.timers, ch)
	t.lit[ch] = false
	t.mu.Unlock()

	if err := t.driver.Set(ch, false); err != nil {
		t.logger.Debug("indicator off failed", zap.Stringer("channel", ch), zap.Error(err))
	}
}

// Pulses returns how many pulses ch has received
func (t *Trigger) Pulses(ch Channel) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count[ch]
}

// Close cancels pending pulses and turns every lit channel off
func (t *Trigger) Close() {
	t.mu.Lock()
	type pending struct {
		ch Channel
		io *sync.Mutex
	}
	var off []pending
	for ch := range t.gen {
		if tm := t.timers[ch]; tm != nil {
			tm.Stop()
		}
		t.gen[ch]++
		if t.lit[ch] {
			off = append(off, pending{ch, t.ioLock(ch)})
		}
	}
	clear(t.timers)
	clear(t.lit)
	t.mu.Unlock()

	for _, p := range off {
		p.io.Lock()
		if err := t.driver.Set(p.ch, false); err != nil {
			t.logger.Debug("indicator off failed", zap.Stringer("channel", p.ch), zap.Error(err))
		}
		p.io.Unlock()
	}
}
