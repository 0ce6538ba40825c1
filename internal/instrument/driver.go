// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package instrument

import "context"

// Driver is the capability set shared by every instrument driver.
// Drivers are constructed with their connection config but do not own the
// connection lifetime; the pool does.
type Driver interface {
	// Initialize opens the underlying transport and prepares the instrument.
	Initialize(ctx context.Context) error
	// Reset returns the instrument to a known state.
	Reset(ctx context.Context) error
	// ExecuteCommand runs one command with driver-specific parameters and
	// returns the raw response text.
	ExecuteCommand(ctx context.Context, params map[string]any) (string, error)
	// Close releases the transport.
	Close() error
}

// DriverFactory constructs a driver for one instrument config.
type DriverFactory func(cfg Config) (Driver, error)
