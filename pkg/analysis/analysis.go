// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package analysis measures link latency from a logic-analyzer recording of
// the TX and RX indicator lines.
//
// The recording is a CSV with a Timestamp(ms) column and one column per
// digital channel. D0 carries the transmitter's TX indicator and D1 the
// receiver's RX indicator. Each rising edge is one packet event. Every TX
// edge is paired with the earliest unused RX edge after it, provided the
// gap does not exceed the maximum latency.
package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// Column names in a recording
const (
	ColumnTimestamp = "Timestamp(ms)"
	ColumnTX        = "D0"
	ColumnRX        = "D1"
)

// DefaultMaxLatency is the largest TX to RX gap accepted as a match, in ms
const DefaultMaxLatency = 300.0

var (
	ErrNoTXTriggers = errors.New("no TX triggers found")
	ErrNoRXTriggers = errors.New("no RX triggers found")
	ErrNoMatches    = errors.New("no valid latency measurements")
)

// Recording holds the trigger edges extracted from a CSV capture
type Recording struct {
	TX      []float64 // rising edges on D0, ms
	RX      []float64 // rising edges on D1, ms
	Rows    int
	Skipped int
}

// Measurement is one matched TX/RX pair
type Measurement struct {
	Packet  int // index of the TX trigger
	TX      float64
	RX      float64
	Latency float64
}

// Summary aggregates matched latencies
type Summary struct {
	Count int
	Avg   float64
	Min   float64
	Max   float64
}

// Result is a complete analysis
type Result struct {
	Recording    Recording
	MaxLatency   float64
	Measurements []Measurement
	Unmatched    []int // TX trigger indices with no RX partner
	Summary      Summary
}

// RisingEdges returns the timestamps where values goes from 0 to 1. The
// line is assumed low before the first sample.
func RisingEdges(timestamps []float64, values []int) []float64 {
	var edges []float64
	prev := 0
	for i, v := range values {
		if i >= len(timestamps) {
			break
		}
		if prev == 0 && v == 1 {
			edges = append(edges, timestamps[i])
		}
		prev = v
	}
	return edges
}

// ParseRecording reads a CSV capture. Rows that do not parse are skipped
// and counted.
func ParseRecording(r io.Reader, logger *zap.Logger) (Recording, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Recording{}, fmt.Errorf("%w: recording has no header", fault.ErrProtocolMismatch)
		}
		return Recording{}, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, want := range []string{ColumnTimestamp, ColumnTX, ColumnRX} {
		if _, ok := cols[want]; !ok {
			return Recording{}, fmt.Errorf("%w: recording has no %q column", fault.ErrProtocolMismatch, want)
		}
	}
	tsCol, txCol, rxCol := cols[ColumnTimestamp], cols[ColumnTX], cols[ColumnRX]

	var (
		rec        Recording
		timestamps []float64
		tx, rx     []int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rec.Rows++
		if err != nil {
			rec.Skipped++
			logger.Debug("skipping unreadable row", zap.Int("row", rec.Rows), zap.Error(err))
			continue
		}

		ts, d0, d1, err := parseRow(row, tsCol, txCol, rxCol)
		if err != nil {
			rec.Skipped++
			logger.Debug("skipping invalid row", zap.Int("row", rec.Rows), zap.Error(err))
			continue
		}
		timestamps = append(timestamps, ts)
		tx = append(tx, d0)
		rx = append(rx, d1)
	}

	rec.TX = RisingEdges(timestamps, tx)
	rec.RX = RisingEdges(timestamps, rx)

	logger.Info("recording parsed",
		zap.Int("rows", rec.Rows),
		zap.Int("skipped", rec.Skipped),
		zap.Int("tx_triggers", len(rec.TX)),
		zap.Int("rx_triggers", len(rec.RX)))
	return rec, nil
}

func parseRow(row []string, tsCol, txCol, rxCol int) (ts float64, d0, d1 int, err error) {
	need := max(tsCol, txCol, rxCol)
	if len(row) <= need {
		return 0, 0, 0, fmt.Errorf("row has %d fields, need %d", len(row), need+1)
	}
	if ts, err = strconv.ParseFloat(strings.TrimSpace(row[tsCol]), 64); err != nil {
		return 0, 0, 0, err
	}
	if d0, err = strconv.Atoi(strings.TrimSpace(row[txCol])); err != nil {
		return 0, 0, 0, err
	}
	if d1, err = strconv.Atoi(strings.TrimSpace(row[rxCol])); err != nil {
		return 0, 0, 0, err
	}
	return ts, d0, d1, nil
}

// Match pairs each TX trigger with the earliest unused RX trigger strictly
// after it and no more than maxLatency later. Both slices must be sorted.
func Match(tx, rx []float64, maxLatency float64) (matched []Measurement, unmatched []int) {
	used := make([]bool, len(rx))
	for n, t := range tx {
		i := sort.Search(len(rx), func(i int) bool { return rx[i] > t })
		for ; i < len(rx) && rx[i]-t <= maxLatency; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			matched = append(matched, Measurement{Packet: n, TX: t, RX: rx[i], Latency: rx[i] - t})
			break
		}
		if len(matched) == 0 || matched[len(matched)-1].Packet != n {
			unmatched = append(unmatched, n)
		}
	}
	return matched, unmatched
}

// Summarize computes the average, minimum and maximum latency
func Summarize(ms []Measurement) Summary {
	if len(ms) == 0 {
		return Summary{}
	}
	s := Summary{Count: len(ms), Min: ms[0].Latency, Max: ms[0].Latency}
	var total float64
	for _, m := range ms {
		total += m.Latency
		s.Min = min(s.Min, m.Latency)
		s.Max = max(s.Max, m.Latency)
	}
	s.Avg = total / float64(len(ms))
	return s
}

// Analyze parses a recording and matches its triggers. It fails when either
// channel has no triggers or nothing matches.
func Analyze(r io.Reader, maxLatency float64, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLatency <= 0 {
		return nil, fmt.Errorf("%w: max latency must be positive, got %v", fault.ErrInvalidConfig, maxLatency)
	}

	rec, err := ParseRecording(r, logger)
	if err != nil {
		return nil, err
	}
	if len(rec.TX) == 0 {
		return nil, ErrNoTXTriggers
	}
	if len(rec.RX) == 0 {
		return nil, ErrNoRXTriggers
	}

	matched, unmatched := Match(rec.TX, rec.RX, maxLatency)
	for _, n := range unmatched {
		logger.Warn("no matching RX trigger", zap.Int("packet", n), zap.Float64("tx_ms", rec.TX[n]))
	}
	if len(matched) == 0 {
		return nil, ErrNoMatches
	}

	return &Result{
		Recording:    rec,
		MaxLatency:   maxLatency,
		Measurements: matched,
		Unmatched:    unmatched,
		Summary:      Summarize(matched),
	}, nil
}
