// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package driver contains the concrete instrument drivers: SCPI-speaking
// hardware (data acquisition, power supplies), relay boxes, and the
// virtual command drivers (console, comport, tcpip) that run on LOCAL
// connections.
package driver

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks a driver I/O deadline or command timeout. Measurements
// map it to an ERROR outcome.
var ErrTimeout = errors.New("timeout")

// ErrConnectionFailed marks a transport that could not be established.
var ErrConnectionFailed = errors.New("connection failed")

// TimeoutError carries the elapsed budget for a human-readable message.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %dms", e.After.Milliseconds())
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
