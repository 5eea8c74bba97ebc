// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package netstack

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mdlayher/wifi"
	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// HostConfig selects the interface a Host manages
type HostConfig struct {
	Interface    string
	PollInterval time.Duration
	Runner       Runner
}

// Host is the Stack of the machine strobe runs on. Link and station state
// come from nl80211 through mdlayher/wifi; mode, channel, and regulatory
// changes go through iw, and access-point mode runs hostapd.
type Host struct {
	cfg    HostConfig
	logger *zap.Logger
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	clientMu sync.Mutex
	client   *wifi.Client

	mu         sync.Mutex
	up         bool
	associated bool
	bound      netip.Addr
	apUp       bool
	stations   map[string]net.HardwareAddr
	injection  bool
	hostapd    *exec.Cmd
	apConfig   string
	closed     bool
}

// NewHost opens an nl80211 client for cfg.Interface and starts polling it
func NewHost(cfg HostConfig, logger *zap.Logger) (*Host, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner
	}

	c, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("%w: open nl80211 client: %v", fault.ErrResource, err)
	}

	h := &Host{
		cfg:      cfg,
		logger:   logger,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		client:   c,
		stations: make(map[string]net.HardwareAddr),
	}
	if _, err := h.iface(); err != nil {
		c.Close()
		return nil, err
	}

	h.wg.Add(1)
	go h.pollLoop()
	return h, nil
}

func (h *Host) iface() (*wifi.Interface, error) {
	h.clientMu.Lock()
	defer h.clientMu.Unlock()

	ifaces, err := h.client.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate wifi interfaces: %v", fault.ErrResource, err)
	}
	for _, ifi := range ifaces {
		if ifi.Name == h.cfg.Interface {
			return ifi, nil
		}
	}
	return nil, fmt.Errorf("%w: wifi interface %s not found", fault.ErrResource, h.cfg.Interface)
}

func (h *Host) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Host) Connect(ctx context.Context, creds Credentials) error {
	ifi, err := h.iface()
	if err != nil {
		return err
	}

	h.clientMu.Lock()
	if creds.Passphrase == "" {
		err = h.client.Connect(ifi, creds.SSID)
	} else {
		err = h.client.ConnectWPAPSK(ifi, creds.SSID, creds.Passphrase)
	}
	h.clientMu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: connect to %q: %v", fault.ErrTransientIO, creds.SSID, err)
	}
	return nil
}

func (h *Host) SetMode(ctx context.Context, mode Mode) error {
	name := h.cfg.Interface
	if err := h.cfg.Runner(ctx, "ip", ipLinkArgs(name, false)...); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrResource, err)
	}
	if err := h.cfg.Runner(ctx, "iw", iwModeArgs(name, mode)...); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrResource, err)
	}
	if err := h.cfg.Runner(ctx, "ip", ipLinkArgs(name, true)...); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrResource, err)
	}
	h.logger.Info("interface mode set", zap.String("interface", name), zap.Stringer("mode", mode))
	return nil
}

func (h *Host) SetChannel(ctx context.Context, channel int) error {
	if err := h.cfg.Runner(ctx, "iw", iwChannelArgs(h.cfg.Interface, channel)...); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrResource, err)
	}
	return nil
}

func (h *Host) SetRegDomain(ctx context.Context, country string) error {
	if err := h.cfg.Runner(ctx, "iw", iwRegArgs(country)...); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrResource, err)
	}
	return nil
}

// EnableTxInjection records the request. nl80211 monitor interfaces accept
// injected frames without further setup.
func (h *Host) EnableTxInjection(ctx context.Context, enable bool) error {
	h.mu.Lock()
	h.injection = enable
	h.mu.Unlock()
	h.logger.Debug("tx injection", zap.Bool("enabled", enable))
	return nil
}

func (h *Host) EnableAP(ctx context.Context, cfg APConfig) error {
	f, err := os.CreateTemp("", "strobe-hostapd-*.conf")
	if err != nil {
		return fmt.Errorf("%w: hostapd config: %v", fault.ErrResource, err)
	}
	if _, err := f.WriteString(HostapdConfig(h.cfg.Interface, cfg)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("%w: hostapd config: %v", fault.ErrResource, err)
	}
	f.Close()

	cmd := exec.Command("hostapd", f.Name())
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("%w: start hostapd: %v", fault.ErrResource, err)
	}

	h.mu.Lock()
	h.hostapd = cmd
	h.apConfig = f.Name()
	h.mu.Unlock()

	h.logger.Info("hostapd started", zap.String("ssid", cfg.SSID), zap.Int("pid", cmd.Process.Pid))
	return nil
}

func (h *Host) Status(ctx context.Context) (Status, error) {
	ifi, err := h.iface()
	if err != nil {
		return Status{}, err
	}
	up, _ := h.InterfaceUp(ctx)

	st := Status{
		Interface: ifi.Name,
		Mode:      ifi.Type.String(),
		Up:        up,
		Frequency: ifi.Frequency,
	}

	h.clientMu.Lock()
	defer h.clientMu.Unlock()

	if bss, err := h.client.BSS(ifi); err == nil {
		st.SSID = bss.SSID
		st.BSSID = bss.BSSID.String()
		st.Frequency = bss.Frequency
	}
	if stations, err := h.client.StationInfo(ifi); err == nil {
		for _, sta := range stations {
			if ifi.Type == wifi.InterfaceTypeStation {
				st.Signal = int(sta.Signal)
				continue
			}
			st.Stations = append(st.Stations, StationStatus{
				MAC:       sta.HardwareAddr,
				Signal:    int(sta.Signal),
				Connected: sta.Connected,
			})
		}
	}
	return st, nil
}

func (h *Host) InterfaceUp(ctx context.Context) (bool, error) {
	ifi, err := net.InterfaceByName(h.cfg.Interface)
	if err != nil {
		return false, fmt.Errorf("%w: %v", fault.ErrResource, err)
	}
	return ifi.Flags&net.FlagUp != 0, nil
}

func (h *Host) Events() <-chan Event {
	return h.events
}

func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	cmd, conf := h.hostapd, h.apConfig
	h.mu.Unlock()

	h.wg.Wait()

	if cmd != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.Remove(conf)
	}

	h.clientMu.Lock()
	defer h.clientMu.Unlock()
	return h.client.Close()
}

func (h *Host) pollLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.poll()
		}
	}
}

// poll compares the interface against the last observation and emits an
// event for every change
func (h *Host) poll() {
	up, err := h.InterfaceUp(context.Background())
	if err != nil {
		h.logger.Debug("interface state unavailable", zap.Error(err))
		return
	}

	h.mu.Lock()
	wasUp := h.up
	h.up = up
	h.mu.Unlock()
	if up && !wasUp {
		h.emit(Event{Kind: EventInterfaceUp})
	}

	ifi, err := h.iface()
	if err != nil {
		return
	}

	switch ifi.Type {
	case wifi.InterfaceTypeStation:
		h.pollStation(ifi)
	case wifi.InterfaceTypeAP:
		h.pollAP(ifi)
	}
}

func (h *Host) pollStation(ifi *wifi.Interface) {
	h.clientMu.Lock()
	bss, err := h.client.BSS(ifi)
	h.clientMu.Unlock()
	associated := err == nil && bss.Status == wifi.BSSStatusAssociated

	h.mu.Lock()
	was := h.associated
	h.associated = associated
	if !associated {
		h.bound = netip.Addr{}
	}
	needAddr := associated && !h.bound.IsValid()
	h.mu.Unlock()

	switch {
	case associated && !was:
		h.emit(Event{Kind: EventLinkConnected})
	case !associated && was:
		h.emit(Event{Kind: EventDisconnected})
	}

	if !needAddr {
		return
	}
	if addr, ok := interfaceIPv4(ifi.Name); ok {
		h.mu.Lock()
		h.bound = addr
		h.mu.Unlock()
		h.emit(Event{Kind: EventDHCPBound, Addr: addr})
	}
}

func (h *Host) pollAP(ifi *wifi.Interface) {
	h.clientMu.Lock()
	stations, err := h.client.StationInfo(ifi)
	h.clientMu.Unlock()

	h.mu.Lock()
	apWasUp := h.apUp
	h.apUp = true
	h.mu.Unlock()
	if !apWasUp {
		h.emit(Event{Kind: EventAPEnabled})
	}
	if err != nil {
		return
	}

	seen := make(map[string]net.HardwareAddr, len(stations))
	for _, sta := range stations {
		seen[sta.HardwareAddr.String()] = sta.HardwareAddr
	}

	h.mu.Lock()
	var joined, left []net.HardwareAddr
	for key, mac := range seen {
		if _, ok := h.stations[key]; !ok {
			joined = append(joined, mac)
		}
	}
	for key, mac := range h.stations {
		if _, ok := seen[key]; !ok {
			left = append(left, mac)
		}
	}
	h.stations = seen
	h.mu.Unlock()

	for _, mac := range left {
		h.emit(Event{Kind: EventStationDisconnected, MAC: mac})
	}
	for _, mac := range joined {
		h.emit(Event{Kind: EventStationConnected, MAC: mac})
	}
}

func interfaceIPv4(name string) (netip.Addr, bool) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return netip.Addr{}, false
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			addr, _ := netip.AddrFromSlice(ip4)
			return addr, true
		}
	}
	return netip.Addr{}, false
}
