// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"strings"
)

// FormatFrame renders b as a hex dump with 16 bytes per row and an ASCII column
func FormatFrame(b []byte) string {
	var sb strings.Builder
	for off := 0; off < len(b); off += 16 {
		end := min(off+16, len(b))
		row := b[off:end]

		fmt.Fprintf(&sb, "%04X  ", off)
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&sb, "%02X ", row[i])
			} else {
				sb.WriteString("   ")
			}
			if i == 7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(" |")
		for _, c := range row {
			if c >= 0x20 && c < 0x7F {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}

// FormatPreamble returns a one-line summary of a raw-transmit preamble
func FormatPreamble(p Preamble) string {
	return fmt.Sprintf("magic=0x%08X rate=%d len=%d mode=%d queue=%d flag=%d",
		p.Magic, p.Rate, p.Length, p.Mode, p.Queue, p.Flag)
}
