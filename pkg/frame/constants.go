// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frame implements the raw 802.11 test frame used by strobe.
//
// A test frame is a vendor raw-transmit preamble followed by a fixed-size
// beacon whose SSID element carries a constant signature. The transmitter
// advances the beacon's sequence control on every build; the receiver
// recognizes the signature in captured traffic.
package frame

// Raw-transmit preamble
const (
	MagicRawTx   = 0x12345678
	PreambleSize = 10 // magic(4) rate(1) length(2) mode(1) queue(1) flag(1)
)

// Beacon layout
const (
	HeaderSize     = 24  // frame control(2) duration(2) DA(6) SA(6) BSSID(6) seq ctrl(2)
	FixedFieldSize = 12  // timestamp(8) interval(2) capability(2)
	BodySize       = 256 // fixed fields + elements, zero padded
	BeaconSize     = HeaderSize + BodySize
	Size           = PreambleSize + BeaconSize
)

// FrameControlBeacon is the little-endian frame control of a management beacon
const FrameControlBeacon = 0x0080

// Sequence control
const (
	SeqIncrement = 0x0010 // one step of the 12-bit sequence number
	SeqMask      = 0xFFF0
	SeqWrap      = 0x0010
	SeqInitial   = 0x0001
)

// Classification
const (
	// Signature is the SSID carried by every test frame
	Signature = "WIFI_LATENCY_TEST"

	// ElementOffset is where the first information element starts
	ElementOffset = HeaderSize + FixedFieldSize

	// MinTestFrameSize covers the header, fixed fields, and one element header
	MinTestFrameSize = ElementOffset + 2

	// RxHeaderSize is the receive metadata the driver prepends in monitor mode
	RxHeaderSize = 6
)

// Information element IDs
const (
	ElementSSID           = 0
	ElementSupportedRates = 1
	ElementDSParameterSet = 3
	ElementTIM            = 5
	ElementVendorSpecific = 221
)

// Addresses
var (
	BroadcastAddr = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	DefaultSource = [6]byte{0xA0, 0x69, 0x60, 0xE3, 0x52, 0x15}
)

// fixedFields: timestamp, beacon interval (100 TU), capability
var fixedFields = [FixedFieldSize]byte{
	0x0C, 0xA2, 0x28, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x64, 0x00,
	0x11, 0x04,
}

// trailingElements is copied verbatim after the SSID element. The rest of
// the body stays zero.
var trailingElements = []byte{
	0x01, 0x08, 0x82, 0x84, 0x8B, 0x96, 0x0C, 0x12, 0x18, 0x24,
	0x03, 0x01, 0x06,
	0x05, 0x04, 0x00, 0x02, 0x00, 0x00,
	0x2A, 0x01, 0x04,
	0x32, 0x04, 0x30, 0x48, 0x60, 0x6C,
	0x30, 0x14, 0x01, 0x00, 0x00, 0x0F, 0xAC, 0x04, 0x01, 0x00, 0x00, 0x0F, 0xAC, 0x04,
	0x01, 0x00, 0x00, 0x0F, 0xAC, 0x02, 0x0C, 0x00,
	0x3B, 0x02, 0x51, 0x00,
	0x2D, 0x1A, 0x0C, 0x00, 0x17, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x2C, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x3D, 0x16, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x7F, 0x08, 0x04, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40,
	0xFF, 0x1A, 0x23, 0x01, 0x78, 0x10, 0x1A, 0x00, 0x00, 0x00, 0x20, 0x0E, 0x09, 0x00,
	0x09, 0x80, 0x04, 0x01, 0xC4, 0x00, 0xFA, 0xFF, 0xFA, 0xFF, 0x61, 0x1C, 0xC7, 0x71,
	0xFF, 0x07, 0x24, 0xF0, 0x3F, 0x00, 0x81, 0xFC, 0xFF,
	0xDD, 0x18, 0x00, 0x50, 0xF2, 0x02, 0x01, 0x01, 0x01, 0x00, 0x03, 0xA4, 0x00, 0x00,
	0x27, 0xA4, 0x00, 0x00, 0x42, 0x43, 0x5E, 0x00, 0x62, 0x32, 0x2F, 0x00,
}
