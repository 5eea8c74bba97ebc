// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fault defines the error classes shared by the strobe components.
//
// Components wrap one of these sentinels with context, callers classify with
// errors.Is. Per-packet classes (ErrTransientIO, ErrProtocolMismatch) are
// recovered inside the session loops; setup classes abort the role sequence.
package fault

import "errors"

var (
	// ErrResource reports a socket or interface that could not be set up
	ErrResource = errors.New("resource unavailable")

	// ErrTransientIO reports a single failed send or receive
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrTimeout reports an expired connection or readiness wait
	ErrTimeout = errors.New("timed out")

	// ErrExhaustedRetries reports that every connection attempt timed out or failed
	ErrExhaustedRetries = errors.New("connection retries exhausted")

	// ErrProtocolMismatch reports a received frame that is not a test frame
	ErrProtocolMismatch = errors.New("not a test frame")

	// ErrInvalidConfig reports a malformed configuration value
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsFatal reports whether err belongs to a class that must abort startup
func IsFatal(err error) bool {
	return errors.Is(err, ErrResource) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrExhaustedRetries) ||
		errors.Is(err, ErrInvalidConfig)
}
