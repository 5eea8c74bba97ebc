// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/strobe/pkg/analysis"
)

var (
	analyzeInput      string
	analyzeOutput     string
	analyzeMaxLatency float64
	analyzeTable      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute per-packet latency from a logic analyzer capture",
	Long: `Read a logic analyzer CSV export and pair TX indicator pulses (D0) with
RX indicator pulses (D1).

The CSV needs a header with "Timestamp(ms)", "D0" and "D1" columns. Each TX
rising edge is matched to the earliest unused RX rising edge that follows it
within --max-latency milliseconds.

The result is printed as a Markdown report, or written to --output.

Exit codes:
  0 - At least one measurement
  1 - No TX or RX triggers, no matches, or an unreadable capture

Examples:
  strobe analyze -i capture.csv
  strobe analyze -i capture.csv -m 150 -o results.md
  strobe analyze -i capture.csv --table`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeInput, "input", "i", "", "Capture CSV (- for stdin)")
	f.StringVarP(&analyzeOutput, "output", "o", "", "Write the Markdown report to this file")
	f.Float64VarP(&analyzeMaxLatency, "max-latency", "m", analysis.DefaultMaxLatency, "Largest TX to RX gap accepted, in ms")
	f.BoolVar(&analyzeTable, "table", false, "Print the measurements as a terminal table")
	_ = analyzeCmd.MarkFlagRequired("input")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if analyzeInput != "-" {
		f, err := os.Open(analyzeInput)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	result, err := analysis.Analyze(in, analyzeMaxLatency, logger.Named("analysis"))
	if err != nil {
		return err
	}

	if analyzeOutput != "" {
		if err := os.WriteFile(analyzeOutput, []byte(result.Markdown()), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report written to %s (%s)\n", analyzeOutput, result.Summary)
	}

	switch {
	case analyzeTable:
		fmt.Println(renderResultTable(result))
	case analyzeOutput == "":
		fmt.Print(result.Markdown())
	}
	return nil
}

// renderResultTable draws the measurements followed by the summary rows
func renderResultTable(r *analysis.Result) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true).
		Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	summaryStyle := cellStyle.Foreground(lipgloss.Color("10")).Bold(true)

	rows := make([][]string, 0, len(r.Measurements)+3)
	for _, m := range r.Measurements {
		rows = append(rows, []string{
			fmt.Sprintf("%d", m.Packet),
			fmt.Sprintf("%.2f", m.TX),
			fmt.Sprintf("%.2f", m.RX),
			fmt.Sprintf("%.2f", m.Latency),
		})
	}
	measured := len(rows)
	s := r.Summary
	rows = append(rows,
		[]string{"Average", "-", "-", fmt.Sprintf("%.2f", s.Avg)},
		[]string{"Minimum", "-", "-", fmt.Sprintf("%.2f", s.Min)},
		[]string{"Maximum", "-", "-", fmt.Sprintf("%.2f", s.Max)},
	)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Packet", "TX (ms)", "RX (ms)", "Latency (ms)").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= measured:
				return summaryStyle
			}
			return cellStyle
		})

	out := t.Render()
	if n := len(r.Unmatched); n > 0 {
		out += fmt.Sprintf("\n%d TX triggers had no RX trigger within %.0f ms", n, r.MaxLatency)
	}
	return out
}
