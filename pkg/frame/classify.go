// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"time"
)

// IsTestFrame reports whether b is an 802.11 frame whose first information
// element is the SSID element carrying Signature. Only the first element is
// inspected.
func IsTestFrame(b []byte) bool {
	if len(b) < MinTestFrameSize {
		return false
	}
	id := b[ElementOffset]
	n := int(b[ElementOffset+1])
	if id != ElementSSID || n != len(Signature) {
		return false
	}
	start := ElementOffset + 2
	if len(b) < start+n {
		return false
	}
	return string(b[start:start+n]) == Signature
}

// StripRxHeader removes the receive metadata a monitor-mode driver prepends.
// Short buffers yield an empty slice.
func StripRxHeader(b []byte) []byte {
	if len(b) <= RxHeaderSize {
		return b[:0]
	}
	return b[RxHeaderSize:]
}

// Stats counts classified frames for one receive session
type Stats struct {
	Total      uint64
	Identified uint64
	First      time.Time
	Last       time.Time
}

// Classify records b in stats and reports whether it is a test frame.
// Frames that do not match are counted in Total only.
func Classify(b []byte, stats *Stats) bool {
	stats.Total++
	if !IsTestFrame(b) {
		return false
	}

	now := time.Now()
	if stats.Identified == 0 {
		stats.First = now
	}
	stats.Identified++
	stats.Last = now
	return true
}

// Reset clears all counters
func (s *Stats) Reset() {
	*s = Stats{}
}

// Span returns the time between the first and last identified frame
func (s *Stats) Span() time.Duration {
	if s.Identified < 2 {
		return 0
	}
	return s.Last.Sub(s.First)
}

// String returns a formatted statistics summary
func (s *Stats) String() string {
	var pct float64
	if s.Total > 0 {
		pct = float64(s.Identified) * 100.0 / float64(s.Total)
	}

	result := "=== Frame Statistics ===\n"
	result += fmt.Sprintf("Total Frames:    %8d\n", s.Total)
	result += fmt.Sprintf("Test Frames:     %8d (%.1f%%)\n", s.Identified, pct)
	if s.Identified > 0 {
		result += fmt.Sprintf("First:           %s\n", s.First.Format("15:04:05.000"))
		result += fmt.Sprintf("Last:            %s\n", s.Last.Format("15:04:05.000"))
		result += fmt.Sprintf("Span:            %v\n", s.Span())
	}
	result += "========================\n"
	return result
}
