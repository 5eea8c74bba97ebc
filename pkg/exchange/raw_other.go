// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package exchange

import (
	"fmt"
	"runtime"
	"time"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// RawSocket is only available on Linux
type RawSocket struct{}

// OpenRaw always fails outside Linux
func OpenRaw(ifname string, timeout time.Duration) (*RawSocket, error) {
	return nil, fmt.Errorf("%w: raw packet sockets are not supported on %s", fault.ErrResource, runtime.GOOS)
}

func (r *RawSocket) Send(b []byte) error             { return fault.ErrResource }
func (r *RawSocket) Receive(buf []byte) (int, error) { return 0, fault.ErrResource }
func (r *RawSocket) Close() error                    { return nil }
