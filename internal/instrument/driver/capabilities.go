// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package driver

import "context"

// DMM is implemented by drivers that can read one scalar from a channel,
// e.g. `MeasureScalar(ctx, 101, "volt", "DC")`.
type DMM interface {
	MeasureScalar(ctx context.Context, channel int, item, typ string) (float64, error)
}

// PowerSupply is implemented by programmable supply drivers.
type PowerSupply interface {
	// SetOutput programs voltage and current on a channel.
	SetOutput(ctx context.Context, channel int, volt, curr float64) error
	// ReadbackVoltage returns the measured output voltage, if the hardware
	// supports readback.
	ReadbackVoltage(ctx context.Context, channel int) (float64, error)
	// SetProtection programs over-voltage / over-current protection;
	// zero disables either.
	SetProtection(ctx context.Context, channel int, ovp, ocp float64) error
}

// RelayBox is implemented by drivers that switch named relays.
type RelayBox interface {
	Switch(ctx context.Context, relay, action string) error
}
