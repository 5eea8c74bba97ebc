// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import "sync"

// Options configures the preamble and source address of built frames
type Options struct {
	Rate   uint8
	Mode   uint8
	Queue  uint8
	Source [6]byte
}

// DefaultOptions matches the transmitter's factory setup
func DefaultOptions() Options {
	return Options{Rate: 9, Source: DefaultSource}
}

// Codec builds successive test frames. It owns the sequence counter.
type Codec struct {
	mu    sync.Mutex
	frame Frame
}

// NewCodec creates a codec whose first frame carries SeqInitial
func NewCodec(opts Options) *Codec {
	return &Codec{
		frame: Frame{
			Preamble: Preamble{
				Magic:  MagicRawTx,
				Rate:   opts.Rate,
				Length: BeaconSize,
				Mode:   opts.Mode,
				Queue:  opts.Queue,
			},
			Beacon: Beacon{
				FrameControl: FrameControlBeacon,
				DA:           BroadcastAddr,
				SA:           opts.Source,
				BSSID:        opts.Source,
				SeqCtrl:      SeqInitial,
				Body:         NewBody(),
			},
		},
	}
}

// Build serializes the current frame and advances the sequence control.
// Every build returns exactly Size bytes.
func (c *Codec) Build() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out, err := c.frame.MarshalBinary()
	if err != nil {
		// Frame holds only fixed-size fields
		panic("frame: encode error: " + err.Error())
	}
	c.frame.Beacon.SeqCtrl = NextSequence(c.frame.Beacon.SeqCtrl)
	return out
}

// SeqCtrl returns the sequence control the next Build will carry
func (c *Codec) SeqCtrl() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame.Beacon.SeqCtrl
}

// NextSequence advances a sequence control by one sequence number and
// clears the fragment bits. Overflow past SeqMask wraps to SeqWrap, never 0.
func NextSequence(seq uint16) uint16 {
	next := (uint32(seq) + SeqIncrement) &^ 0x000F
	if next > SeqMask {
		return SeqWrap
	}
	return uint16(next)
}
