// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package exchange

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// RawSocket is an AF_PACKET socket bound to one interface. Frames are sent
// and received whole, including any driver preamble or receive header.
type RawSocket struct {
	fd      int
	ifindex int
}

// OpenRaw binds a raw packet socket to ifname, receiving every protocol.
// Receive waits at most timeout.
func OpenRaw(ifname string, timeout time.Duration) (*RawSocket, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %s: %v", fault.ErrResource, ifname, err)
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("%w: raw socket: %v", fault.ErrResource, err)
	}

	sa := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: bind raw socket to %s: %v", fault.ErrResource, ifname, err)
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: set receive timeout: %v", fault.ErrResource, err)
	}

	return &RawSocket{fd: fd, ifindex: ifi.Index}, nil
}

func (r *RawSocket) Send(b []byte) error {
	sa := &unix.SockaddrLinklayer{Ifindex: r.ifindex}
	if err := unix.Sendto(r.fd, b, 0, sa); err != nil {
		return fmt.Errorf("%w: raw send: %v", fault.ErrTransientIO, err)
	}
	return nil
}

func (r *RawSocket) Receive(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(r.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return 0, ErrNoData
		}
		return 0, fmt.Errorf("%w: raw receive: %v", fault.ErrTransientIO, err)
	}
	return n, nil
}

func (r *RawSocket) Close() error {
	return unix.Close(r.fd)
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
