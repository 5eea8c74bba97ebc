// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/strobe/pkg/fault"
)

// Pipe is an in-memory link used by the simulated stack. Packets sent on
// the pipe are received in order; a full pipe drops the packet.
type Pipe struct {
	ch      chan []byte
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewPipe creates a pipe holding up to depth packets
func NewPipe(depth int, timeout time.Duration) *Pipe {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Pipe{ch: make(chan []byte, depth), timeout: timeout}
}

func (p *Pipe) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: pipe closed", fault.ErrTransientIO)
	}

	select {
	case p.ch <- append([]byte(nil), b...):
		return nil
	default:
		return fmt.Errorf("%w: pipe full", fault.ErrTransientIO)
	}
}

func (p *Pipe) Receive(buf []byte) (int, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case b, ok := <-p.ch:
		if !ok {
			return 0, fmt.Errorf("%w: pipe closed", fault.ErrTransientIO)
		}
		return copy(buf, b), nil
	case <-timer.C:
		return 0, ErrNoData
	}
}

// Close stops further sends. Packets already queued can still be received.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// Sender returns a view of p whose Close does not close the pipe, so a
// session can release its transport while the receiver keeps reading.
func (p *Pipe) Sender() Sender {
	return pipeSender{p}
}

type pipeSender struct{ p *Pipe }

func (s pipeSender) Send(b []byte) error { return s.p.Send(b) }
func (s pipeSender) Close() error        { return nil }
