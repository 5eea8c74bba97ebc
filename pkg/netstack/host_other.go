// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package netstack

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// HostConfig selects the interface a Host manages
type HostConfig struct {
	Interface    string
	PollInterval time.Duration
	Runner       Runner
}

// Host is only available on Linux; use the simulated stack elsewhere
type Host struct{ Sim }

// NewHost always fails outside Linux
func NewHost(cfg HostConfig, logger *zap.Logger) (*Host, error) {
	return nil, fmt.Errorf("%w: nl80211 is not available on %s", fault.ErrResource, runtime.GOOS)
}
