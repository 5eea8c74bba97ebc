// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package station tracks stations associated to the access point.
package station

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/internal/metrics"
	"github.com/Thermoquad/strobe/pkg/netstack"
)

// Defaults
const (
	DefaultCapacity    = 4
	DefaultSettleDelay = time.Second
)

// DefaultBase is the first address handed to stations
var DefaultBase = netip.MustParseAddr("192.168.1.2")

// Entry is one slot of the registry
type Entry struct {
	MAC     net.HardwareAddr
	Valid   bool
	Address netip.Addr // zero until the settle delay has passed
}

// Config sizes the registry
type Config struct {
	Capacity    int
	Base        netip.Addr
	SettleDelay time.Duration
}

// Registry is a fixed-capacity table of connected stations. Safe for
// concurrent use.
type Registry struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	entries   []Entry
	epoch     []uint64 // bumped each time a slot is taken
	first     chan struct{}
	firstSeen bool

	settling sync.WaitGroup
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if cfg.Capacity < 1 {
		cfg.Capacity = DefaultCapacity
	}
	if !cfg.Base.IsValid() {
		cfg.Base = DefaultBase
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger,
		entries: make([]Entry, cfg.Capacity),
		epoch:   make([]uint64, cfg.Capacity),
		first:   make(chan struct{}),
	}
}

// OnStationConnect tracks mac in the first free slot, waits the settle
// delay, then assigns its address. A full table only logs the station.
func (r *Registry) OnStationConnect(ctx context.Context, mac net.HardwareAddr) {
	if slot, epoch, ok := r.track(mac); ok {
		r.settle(ctx, mac, slot, epoch)
	}
}

// track claims a slot for mac. It reports false for a duplicate or when
// the table is full.
func (r *Registry) track(mac net.HardwareAddr) (int, uint64, bool) {
	r.mu.Lock()
	for i := range r.entries {
		if r.entries[i].Valid && bytes.Equal(r.entries[i].MAC, mac) {
			r.mu.Unlock()
			r.logger.Info("station already tracked", zap.Stringer("mac", mac), zap.Int("slot", i))
			return 0, 0, false
		}
	}

	slot := -1
	for i := range r.entries {
		if !r.entries[i].Valid {
			slot = i
			break
		}
	}
	if slot < 0 {
		r.mu.Unlock()
		r.logger.Warn("station table full, not tracking", zap.Stringer("mac", mac), zap.Int("capacity", r.cfg.Capacity))
		return 0, 0, false
	}

	r.entries[slot] = Entry{MAC: bytes.Clone(mac), Valid: true}
	r.epoch[slot]++
	epoch := r.epoch[slot]
	if !r.firstSeen {
		r.firstSeen = true
		close(r.first)
	}
	metrics.Stations.Set(float64(r.countLocked()))
	r.mu.Unlock()

	r.logger.Info("station connected", zap.Stringer("mac", mac), zap.Int("slot", slot))
	return slot, epoch, true
}

// settle waits the settle delay and assigns the address, unless the
// station left or its slot was taken again in the meantime
func (r *Registry) settle(ctx context.Context, mac net.HardwareAddr, slot int, epoch uint64) {
	if r.cfg.SettleDelay > 0 {
		timer := time.NewTimer(r.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := &r.entries[slot]
	if !e.Valid || r.epoch[slot] != epoch {
		// left during the settle delay
		return
	}
	e.Address = r.nextAddressLocked(slot)
	r.logger.Info("station address assigned", zap.Stringer("mac", mac), zap.Stringer("addr", e.Address))
}

// nextAddressLocked derives the address from how many other stations hold
// one, skipping any address still in use
func (r *Registry) nextAddressLocked(slot int) netip.Addr {
	used := make(map[netip.Addr]bool)
	for i, e := range r.entries {
		if i != slot && e.Valid && e.Address.IsValid() {
			used[e.Address] = true
		}
	}

	addr := r.cfg.Base
	for i := 0; i < len(used); i++ {
		addr = addr.Next()
	}
	for used[addr] {
		addr = addr.Next()
	}
	return addr
}

// OnStationDisconnect clears the entry whose MAC matches exactly
func (r *Registry) OnStationDisconnect(mac net.HardwareAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].Valid && bytes.Equal(r.entries[i].MAC, mac) {
			r.entries[i] = Entry{}
			metrics.Stations.Set(float64(r.countLocked()))
			r.logger.Info("station disconnected", zap.Stringer("mac", mac), zap.Int("slot", i))
			return
		}
	}
	r.logger.Debug("disconnect for untracked station", zap.Stringer("mac", mac))
}

// Handle routes station events. A connect claims its slot at once; the
// settle delay and address assignment run in their own goroutine so later
// events are not held up. Cancelling ctx abandons pending assignments.
func (r *Registry) Handle(ctx context.Context, ev netstack.Event) {
	switch ev.Kind {
	case netstack.EventStationConnected:
		slot, epoch, ok := r.track(ev.MAC)
		if !ok {
			return
		}
		mac := bytes.Clone(ev.MAC)
		r.settling.Go(func() { r.settle(ctx, mac, slot, epoch) })
	case netstack.EventStationDisconnected:
		r.OnStationDisconnect(ev.MAC)
	}
}

// Wait blocks until every assignment started by Handle has finished
func (r *Registry) Wait() {
	r.settling.Wait()
}

// FirstStation is closed once, when the first station is tracked
func (r *Registry) FirstStation() <-chan struct{} {
	return r.first
}

// Entries returns a copy of every slot
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = Entry{MAC: bytes.Clone(e.MAC), Valid: e.Valid, Address: e.Address}
	}
	return out
}

// Count returns how many slots are in use
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked()
}

func (r *Registry) countLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.Valid {
			n++
		}
	}
	return n
}
