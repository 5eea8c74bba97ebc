// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Bridge message kinds
const (
	KindLED    = 1
	KindButton = 2
)

// RestartButton is the bridge button that restarts a TX session
const RestartButton = 1

// Message is one CBOR map exchanged with the indicator bridge:
// {0: kind, 1: channel or button, 2: on or pressed}
type Message struct {
	Kind    uint8 `cbor:"0,keyasint"`
	Channel uint8 `cbor:"1,keyasint"`
	On      bool  `cbor:"2,keyasint"`
}

// BridgeDriver writes LED messages to a bridge connection
type BridgeDriver struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBridgeDriver creates a driver writing to w
func NewBridgeDriver(w io.Writer) *BridgeDriver {
	return &BridgeDriver{w: w}
}

// Set sends one LED message
func (b *BridgeDriver) Set(ch Channel, on bool) error {
	data, err := cbor.Marshal(Message{Kind: KindLED, Channel: uint8(ch), On: on})
	if err != nil {
		return fmt.Errorf("failed to encode bridge message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.w.Write(data); err != nil {
		return fmt.Errorf("failed to write bridge message: %w", err)
	}
	return nil
}

// WatchButtons decodes bridge messages from r and calls fn for each press of
// RestartButton. LED echoes and releases are ignored. It returns nil when r
// reaches EOF and ctx.Err() once ctx is done; callers close r to unblock it.
func WatchButtons(ctx context.Context, r io.Reader, fn func()) error {
	dec := cbor.NewDecoder(r)
	for {
		var msg Message
		err := dec.Decode(&msg)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode bridge message: %w", err)
		}

		if msg.Kind == KindButton && msg.Channel == RestartButton && msg.On {
			fn()
		}
	}
}
