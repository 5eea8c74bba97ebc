// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Description is the decoded view of an 802.11 frame
type Description struct {
	Type     string
	Receiver net.HardwareAddr
	Source   net.HardwareAddr
	BSSID    net.HardwareAddr
	Sequence uint16
	Fragment uint16
	Interval uint16 // beacon interval in TU, zero for non-beacons
	SSID     string
	Elements []layers.Dot11InformationElementID
	IsTest   bool
}

// Describe decodes an 802.11 frame without FCS. Use StripRxHeader first on
// monitor-mode captures and skip PreambleSize on built frames.
func Describe(b []byte) (Description, error) {
	var d Description
	if len(b) < HeaderSize {
		return d, fmt.Errorf("frame too short: %d bytes (min %d)", len(b), HeaderSize)
	}

	// The Dot11 decoder expects a trailing FCS
	data := make([]byte, len(b), len(b)+4)
	copy(data, b)
	data = binary.LittleEndian.AppendUint32(data, crc32.ChecksumIEEE(b))

	pkt := gopacket.NewPacket(data, layers.LayerTypeDot11, gopacket.Default)
	dot11, ok := pkt.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		if errLayer := pkt.ErrorLayer(); errLayer != nil {
			return d, fmt.Errorf("failed to decode 802.11 header: %w", errLayer.Error())
		}
		return d, errors.New("failed to decode 802.11 header")
	}

	d.Type = dot11.Type.String()
	d.Receiver = dot11.Address1
	d.Source = dot11.Address2
	d.BSSID = dot11.Address3
	d.Sequence = dot11.SequenceNumber
	d.Fragment = dot11.FragmentNumber
	d.IsTest = IsTestFrame(b)

	if beacon, ok := pkt.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon); ok {
		d.Interval = beacon.Interval
	}

	// Zero padding decodes as empty SSID elements after the leading one.
	// A truncated tail is not an error.
	for _, l := range pkt.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		if len(d.Elements) > 0 && ie.ID == layers.Dot11InformationElementIDSSID && ie.Length == 0 {
			continue
		}
		if ie.ID == layers.Dot11InformationElementIDSSID && d.SSID == "" && len(d.Elements) == 0 {
			d.SSID = string(ie.Info)
		}
		d.Elements = append(d.Elements, ie.ID)
	}

	return d, nil
}

// String returns a one-line summary
func (d Description) String() string {
	tag := ""
	if d.IsTest {
		tag = " [test]"
	}
	return fmt.Sprintf("%s seq=%d frag=%d sa=%s bssid=%s ssid=%q elements=%d%s",
		d.Type, d.Sequence, d.Fragment, d.Source, d.BSSID, d.SSID, len(d.Elements), tag)
}
