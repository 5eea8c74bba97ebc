// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/gopacket/layers"
)

// ============================================================
// Layout
// ============================================================

func TestBuild_Layout(t *testing.T) {
	c := NewCodec(DefaultOptions())
	b := c.Build()

	if len(b) != Size {
		t.Fatalf("frame size = %d, want %d", len(b), Size)
	}
	if got := binary.LittleEndian.Uint32(b[0:4]); got != MagicRawTx {
		t.Errorf("magic = 0x%08X, want 0x%08X", got, MagicRawTx)
	}
	if b[4] != 9 {
		t.Errorf("rate = %d, want 9", b[4])
	}
	if got := binary.LittleEndian.Uint16(b[5:7]); got != BeaconSize {
		t.Errorf("length = %d, want %d", got, BeaconSize)
	}
	if b[9] != 0 {
		t.Errorf("flag = %d, want 0", b[9])
	}

	beacon := b[PreambleSize:]
	if !bytes.Equal(beacon[0:2], []byte{0x80, 0x00}) {
		t.Errorf("frame control = % X, want 80 00", beacon[0:2])
	}
	if !bytes.Equal(beacon[4:10], BroadcastAddr[:]) {
		t.Errorf("DA = % X, want broadcast", beacon[4:10])
	}
	if !bytes.Equal(beacon[10:16], DefaultSource[:]) || !bytes.Equal(beacon[16:22], DefaultSource[:]) {
		t.Errorf("SA/BSSID = % X / % X", beacon[10:16], beacon[16:22])
	}
	if got := binary.LittleEndian.Uint16(beacon[22:24]); got != SeqInitial {
		t.Errorf("first seq ctrl = 0x%04X, want 0x%04X", got, SeqInitial)
	}
	if !IsTestFrame(beacon) {
		t.Error("built beacon is not recognized as a test frame")
	}
}

func TestNewBody(t *testing.T) {
	body := NewBody()

	if !bytes.Equal(body[:FixedFieldSize], fixedFields[:]) {
		t.Errorf("fixed fields = % X", body[:FixedFieldSize])
	}
	if body[12] != ElementSSID || body[13] != 17 {
		t.Errorf("SSID element header = %02X %02X, want 00 11", body[12], body[13])
	}
	if got := string(body[14:31]); got != Signature {
		t.Errorf("SSID = %q, want %q", got, Signature)
	}
	if body[31] != ElementSupportedRates {
		t.Errorf("element after SSID = %d, want %d", body[31], ElementSupportedRates)
	}
	end := 31 + len(trailingElements)
	for i := end; i < BodySize; i++ {
		if body[i] != 0 {
			t.Fatalf("padding byte %d = 0x%02X, want 0", i, body[i])
		}
	}
}

// ============================================================
// Sequence control
// ============================================================

func TestNextSequence(t *testing.T) {
	tests := []struct {
		name string
		in   uint16
		want uint16
	}{
		{"initial clears fragment", 0x0001, 0x0010},
		{"step", 0x0010, 0x0020},
		{"step with fragment", 0x0123, 0x0130},
		{"last before wrap", 0xFFE0, 0xFFF0},
		{"wrap", 0xFFF0, 0x0010},
		{"wrap with fragment", 0xFFF5, 0x0010},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextSequence(tt.in); got != tt.want {
				t.Errorf("NextSequence(0x%04X) = 0x%04X, want 0x%04X", tt.in, got, tt.want)
			}
		})
	}
}

func TestCodec_SequenceAfterBuilds(t *testing.T) {
	tests := []struct {
		builds int
		want   uint16
	}{
		{0, 0x0001},
		{1, 0x0010},
		{2, 0x0020},
		{100, 0x0640},
		{4095, 0xFFF0},
		{4096, 0x0010},
		{4097, 0x0020},
	}

	for _, tt := range tests {
		c := NewCodec(DefaultOptions())
		for i := 0; i < tt.builds; i++ {
			c.Build()
		}
		if got := c.SeqCtrl(); got != tt.want {
			t.Errorf("after %d builds seq ctrl = 0x%04X, want 0x%04X", tt.builds, got, tt.want)
		}
		if c.SeqCtrl() == 0 {
			t.Errorf("after %d builds seq ctrl is zero", tt.builds)
		}
	}
}

func TestCodec_BuildCarriesSequence(t *testing.T) {
	c := NewCodec(DefaultOptions())
	c.Build()
	b := c.Build()

	var f Frame
	if err := f.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if f.Beacon.SeqCtrl != 0x0010 {
		t.Errorf("second frame seq ctrl = 0x%04X, want 0x0010", f.Beacon.SeqCtrl)
	}
	if f.Beacon.Sequence() != 1 || f.Beacon.Fragment() != 0 {
		t.Errorf("sequence/fragment = %d/%d, want 1/0", f.Beacon.Sequence(), f.Beacon.Fragment())
	}
}

// ============================================================
// Marshal
// ============================================================

func TestFrame_RoundTrip(t *testing.T) {
	opts := Options{Rate: 3, Mode: 1, Queue: 2, Source: [6]byte{1, 2, 3, 4, 5, 6}}
	b := NewCodec(opts).Build()

	var f Frame
	if err := f.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if f.Preamble.Rate != 3 || f.Preamble.Mode != 1 || f.Preamble.Queue != 2 {
		t.Errorf("preamble = %+v", f.Preamble)
	}
	if f.Beacon.SA != opts.Source {
		t.Errorf("SA = % X, want % X", f.Beacon.SA, opts.Source)
	}

	again, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if !bytes.Equal(again, b) {
		t.Error("re-encoded frame differs from original")
	}
}

func TestFrame_UnmarshalBadSize(t *testing.T) {
	var f Frame
	for _, n := range []int{0, Size - 1, Size + 1} {
		if err := f.UnmarshalBinary(make([]byte, n)); err == nil {
			t.Errorf("UnmarshalBinary(%d bytes) expected error", n)
		}
	}
}

// ============================================================
// Classification
// ============================================================

func testBeacon() []byte {
	return NewCodec(DefaultOptions()).Build()[PreambleSize:]
}

func TestIsTestFrame(t *testing.T) {
	wrongID := testBeacon()
	wrongID[ElementOffset] = ElementSupportedRates

	wrongLen := testBeacon()
	wrongLen[ElementOffset+1] = 16

	wrongContent := testBeacon()
	wrongContent[ElementOffset+2] = 'X'

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"test beacon", testBeacon(), true},
		{"exact minimum with signature", testBeacon()[:MinTestFrameSize+len(Signature)], true},
		{"empty", nil, false},
		{"37 bytes", testBeacon()[:37], false},
		{"element header only", testBeacon()[:MinTestFrameSize], false},
		{"wrong element id", wrongID, false},
		{"wrong length", wrongLen, false},
		{"wrong content", wrongContent, false},
		{"zeros", make([]byte, 300), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTestFrame(tt.data); got != tt.want {
				t.Errorf("IsTestFrame() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripRxHeader(t *testing.T) {
	captured := append(make([]byte, RxHeaderSize), testBeacon()...)
	if IsTestFrame(captured) {
		t.Error("capture with receive header should not classify before stripping")
	}
	if !IsTestFrame(StripRxHeader(captured)) {
		t.Error("stripped capture should classify as test frame")
	}
	if got := StripRxHeader([]byte{1, 2, 3}); len(got) != 0 {
		t.Errorf("short buffer stripped to %d bytes, want 0", len(got))
	}
}

func TestClassify_Stats(t *testing.T) {
	var stats Stats

	if !Classify(testBeacon(), &stats) {
		t.Error("test beacon not identified")
	}
	if Classify(make([]byte, 64), &stats) {
		t.Error("zero frame identified")
	}
	Classify(testBeacon(), &stats)

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Identified != 2 {
		t.Errorf("Identified = %d, want 2", stats.Identified)
	}
	if stats.First.IsZero() || stats.Last.Before(stats.First) {
		t.Errorf("First/Last = %v/%v", stats.First, stats.Last)
	}

	stats.Reset()
	if stats.Total != 0 || stats.Identified != 0 || !stats.First.IsZero() {
		t.Errorf("Reset left %+v", stats)
	}
}

func TestStats_String(t *testing.T) {
	stats := Stats{Total: 4, Identified: 1}
	out := stats.String()
	if !strings.Contains(out, "Total Frames:") || !strings.Contains(out, "(25.0%)") {
		t.Errorf("unexpected summary:\n%s", out)
	}
}

// ============================================================
// Describe
// ============================================================

func TestDescribe_TestBeacon(t *testing.T) {
	c := NewCodec(DefaultOptions())
	c.Build()
	d, err := Describe(c.Build()[PreambleSize:])
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	if d.Type != "MgmtBeacon" {
		t.Errorf("Type = %q, want MgmtBeacon", d.Type)
	}
	if d.SSID != Signature {
		t.Errorf("SSID = %q, want %q", d.SSID, Signature)
	}
	if d.Sequence != 1 || d.Fragment != 0 {
		t.Errorf("sequence/fragment = %d/%d, want 1/0", d.Sequence, d.Fragment)
	}
	if d.Interval != 100 {
		t.Errorf("Interval = %d, want 100", d.Interval)
	}
	if d.Source.String() != "a0:69:60:e3:52:15" {
		t.Errorf("Source = %s", d.Source)
	}
	if d.Receiver.String() != "ff:ff:ff:ff:ff:ff" {
		t.Errorf("Receiver = %s", d.Receiver)
	}
	if !d.IsTest {
		t.Error("IsTest = false")
	}
	if len(d.Elements) < 2 || d.Elements[0] != layers.Dot11InformationElementIDSSID ||
		d.Elements[1] != layers.Dot11InformationElementIDRates {
		t.Errorf("Elements = %v", d.Elements)
	}
	if !strings.Contains(d.String(), "[test]") {
		t.Errorf("String() = %q", d.String())
	}
}

func TestDescribe_TooShort(t *testing.T) {
	if _, err := Describe(make([]byte, 10)); err == nil {
		t.Error("expected error for short frame")
	}
}

// ============================================================
// Formatting
// ============================================================

func TestFormatFrame(t *testing.T) {
	out := FormatFrame([]byte("WIFI_LATENCY_TEST"))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "0000  57 49 46 49") {
		t.Errorf("first row = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], "|WIFI_LATENCY_TES|") {
		t.Errorf("ascii column = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0010  54") {
		t.Errorf("second row = %q", lines[1])
	}
}
