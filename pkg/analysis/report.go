// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package analysis

import (
	"fmt"
	"strings"
)

const tableRule = "|---------------|---------------------|---------------------|-------------|\n"

// Markdown renders the result as a summary and a per-packet table
func (r *Result) Markdown() string {
	if r == nil || len(r.Measurements) == 0 {
		return "No measurements available.\n"
	}
	s := r.Summary

	var b strings.Builder
	b.WriteString("## Latency Analysis Results\n\n")
	b.WriteString("**Summary Statistics:**\n")
	fmt.Fprintf(&b, "- Total Packets: %d\n", s.Count)
	fmt.Fprintf(&b, "- Average Latency: %.3f ms\n", s.Avg)
	fmt.Fprintf(&b, "- Minimum Latency: %.3f ms\n", s.Min)
	fmt.Fprintf(&b, "- Maximum Latency: %.3f ms\n", s.Max)
	if n := len(r.Unmatched); n > 0 {
		fmt.Fprintf(&b, "- Unmatched TX Triggers: %d\n", n)
	}
	b.WriteString("\n")

	b.WriteString("| Packet Number | TX Trigger Time (ms) | RX Trigger Time (ms) | Latency (ms) |\n")
	b.WriteString(tableRule)
	for _, m := range r.Measurements {
		fmt.Fprintf(&b, "| %d | %.2f | %.2f | %.2f |\n", m.Packet, m.TX, m.RX, m.Latency)
	}
	b.WriteString(tableRule)
	fmt.Fprintf(&b, "| **Average** | - | - | **%.2f** |\n", s.Avg)
	fmt.Fprintf(&b, "| **Minimum** | - | - | **%.2f** |\n", s.Min)
	fmt.Fprintf(&b, "| **Maximum** | - | - | **%.2f** |\n", s.Max)
	return b.String()
}

// String returns a one-line summary
func (s Summary) String() string {
	return fmt.Sprintf("%d packets, avg %.3f ms, min %.3f ms, max %.3f ms", s.Count, s.Avg, s.Min, s.Max)
}
