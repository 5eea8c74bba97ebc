// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"fmt"

	"github.com/Thermoquad/strobe/pkg/netstack"
)

// State is the station connection state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Reason decodes a link result status code
func Reason(code int) string {
	switch code {
	case netstack.StatusSuccess:
		return "success"
	case netstack.StatusFail:
		return "failure"
	case netstack.StatusWrongPassword:
		return "wrong password"
	case netstack.StatusTimeout:
		return "timeout"
	case netstack.StatusNotFound:
		return "AP not found"
	default:
		return fmt.Sprintf("unknown (%d)", code)
	}
}
