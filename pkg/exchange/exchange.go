// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package exchange moves test traffic: UDP datagrams between two hosts, or
// raw 802.11 frames through an AF_PACKET socket.
package exchange

import (
	"errors"
	"fmt"
	"time"
)

// DefaultReadTimeout bounds a single Receive call
const DefaultReadTimeout = time.Second

// MaxPayloadSize is the largest UDP test payload
const MaxPayloadSize = 64

// ErrNoData is returned by Receive when the read timeout expires with
// nothing received. It is not a failure.
var ErrNoData = errors.New("no data")

// Sender transmits one packet per call
type Sender interface {
	Send(b []byte) error
	Close() error
}

// Receiver reads one packet per call, waiting at most its read timeout
type Receiver interface {
	Receive(buf []byte) (int, error)
	Close() error
}

// Payload formats the UDP test payload for packet seq sent at ms
// milliseconds since the session started.
func Payload(seq uint32, ms int64) string {
	p := fmt.Sprintf("Packet_%d_Time_%d", seq, ms)
	if len(p) > MaxPayloadSize {
		p = p[:MaxPayloadSize]
	}
	return p
}
