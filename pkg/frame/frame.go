// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"encoding/binary"
	"fmt"
)

// Preamble is the vendor raw-transmit header prepended to every frame
type Preamble struct {
	Magic  uint32
	Rate   uint8
	Length uint16
	Mode   uint8
	Queue  uint8
	Flag   uint8
}

// Beacon is the 802.11 management beacon carried after the preamble.
// Multi-byte fields are little-endian on the wire.
type Beacon struct {
	FrameControl uint16
	Duration     uint16
	DA           [6]byte
	SA           [6]byte
	BSSID        [6]byte
	SeqCtrl      uint16
	Body         [BodySize]byte
}

// Frame is a complete test frame as handed to the raw socket
type Frame struct {
	Preamble Preamble
	Beacon   Beacon
}

// NewBody returns the beacon body: fixed fields, the SSID element holding
// Signature, and the trailing element template, zero padded.
func NewBody() [BodySize]byte {
	var body [BodySize]byte
	n := copy(body[:], fixedFields[:])
	body[n] = ElementSSID
	body[n+1] = uint8(len(Signature))
	n += 2
	n += copy(body[n:], Signature)
	copy(body[n:], trailingElements)
	return body
}

// MarshalBinary encodes the frame in its packed wire layout
func (f *Frame) MarshalBinary() ([]byte, error) {
	return f.AppendBinary(make([]byte, 0, Size))
}

// AppendBinary appends the packed wire layout to b
func (f *Frame) AppendBinary(b []byte) ([]byte, error) {
	return binary.Append(b, binary.LittleEndian, f)
}

// UnmarshalBinary decodes a packed frame. Trailing bytes are rejected.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("frame size %d, expected %d", len(data), Size)
	}
	if _, err := binary.Decode(data, binary.LittleEndian, f); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}

// Sequence returns the 12-bit sequence number
func (b *Beacon) Sequence() uint16 {
	return b.SeqCtrl >> 4
}

// Fragment returns the 4-bit fragment number
func (b *Beacon) Fragment() uint8 {
	return uint8(b.SeqCtrl & 0x0F)
}
