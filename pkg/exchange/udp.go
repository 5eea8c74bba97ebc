// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exchange

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// UDPSender sends datagrams to a fixed target
type UDPSender struct {
	conn *net.UDPConn
}

// DialUDP validates target and opens a socket sending to target:port
func DialUDP(target string, port int) (*UDPSender, error) {
	addr, err := netip.ParseAddr(target)
	if err != nil {
		return nil, fmt.Errorf("%w: target %q: %v", fault.ErrInvalidConfig, target, err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d", fault.ErrInvalidConfig, port)
	}

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, uint16(port))))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open UDP socket: %v", fault.ErrResource, err)
	}
	return &UDPSender{conn: conn}, nil
}

func (s *UDPSender) Send(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("%w: udp send: %v", fault.ErrTransientIO, err)
	}
	return nil
}

func (s *UDPSender) Close() error {
	return s.conn.Close()
}

// UDPReceiver reads datagrams on a bound port
type UDPReceiver struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// ListenUDP binds port on all addresses. Port 0 picks a free port.
func ListenUDP(port int, timeout time.Duration) (*UDPReceiver, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d", fault.ErrInvalidConfig, port)
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to bind UDP port %d: %v", fault.ErrResource, port, err)
	}
	return &UDPReceiver{conn: conn, timeout: timeout}, nil
}

// Port returns the bound port
func (r *UDPReceiver) Port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

func (r *UDPReceiver) Receive(buf []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, fmt.Errorf("%w: set read deadline: %v", fault.ErrTransientIO, err)
	}
	n, _, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, ErrNoData
		}
		return 0, fmt.Errorf("%w: udp receive: %v", fault.ErrTransientIO, err)
	}
	return n, nil
}

func (r *UDPReceiver) Close() error {
	return r.conn.Close()
}
