// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// Role is what the device does in a test
type Role string

const (
	RoleTX Role = "tx"
	RoleRX Role = "rx"
)

// PacketType selects the traffic carried by a session
type PacketType string

const (
	PacketUDP PacketType = "udp"
	PacketRaw PacketType = "raw"
)

// RXMode selects how a receiver attaches to the air
type RXMode string

const (
	RXStation     RXMode = "station"
	RXSoftAP      RXMode = "softap"
	RXMonitor     RXMode = "monitor"
	RXPromiscuous RXMode = "promiscuous"
)

// ParseRole validates a role name
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleTX, RoleRX:
		return r, nil
	}
	return "", fmt.Errorf("%w: role %q (want tx or rx)", fault.ErrInvalidConfig, s)
}

// ParsePacketType validates a packet type name
func ParsePacketType(s string) (PacketType, error) {
	switch p := PacketType(s); p {
	case PacketUDP, PacketRaw:
		return p, nil
	}
	return "", fmt.Errorf("%w: packet type %q (want udp or raw)", fault.ErrInvalidConfig, s)
}

// ParseRXMode validates a receive mode name
func ParseRXMode(s string) (RXMode, error) {
	switch m := RXMode(s); m {
	case RXStation, RXSoftAP, RXMonitor, RXPromiscuous:
		return m, nil
	}
	return "", fmt.Errorf("%w: rx mode %q (want station, softap, monitor, or promiscuous)", fault.ErrInvalidConfig, s)
}

// State is the session controller state
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}
