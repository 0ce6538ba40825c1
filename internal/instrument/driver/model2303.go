// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/webpdtool/webpdtool/internal/instrument"
)

// Model2303 drives a programmable DC power supply (Keithley 2303 class)
// over SCPI.
type Model2303 struct {
	conn *scpiConn
}

// NewModel2303 is the driver factory for type "MODEL2303".
func NewModel2303(cfg instrument.Config) (instrument.Driver, error) {
	return &Model2303{conn: newSCPIConn(cfg)}, nil
}

func (d *Model2303) Initialize(ctx context.Context) error {
	return d.conn.Initialize(ctx)
}

func (d *Model2303) Reset(ctx context.Context) error {
	return d.conn.Send(ctx, "*RST")
}

func (d *Model2303) Close() error {
	return d.conn.Close()
}

func (d *Model2303) ExecuteCommand(ctx context.Context, params map[string]any) (string, error) {
	cmd, _ := params["command"].(string)
	if cmd == "" {
		return "", fmt.Errorf("model2303: missing command")
	}
	if strings.HasSuffix(cmd, "?") {
		return d.conn.Query(ctx, cmd)
	}
	return "", d.conn.Send(ctx, cmd)
}

func (d *Model2303) SetOutput(ctx context.Context, channel int, volt, curr float64) error {
	if err := d.conn.Send(ctx, fmt.Sprintf("APP CH%d,%g,%g", channel, volt, curr)); err != nil {
		return err
	}
	return d.conn.Send(ctx, fmt.Sprintf("OUTP CH%d,ON", channel))
}

func (d *Model2303) ReadbackVoltage(ctx context.Context, channel int) (float64, error) {
	resp, err := d.conn.Query(ctx, fmt.Sprintf("MEAS:VOLT? CH%d", channel))
	if err != nil {
		return 0, err
	}
	if resp == "" {
		return 0, fmt.Errorf("empty readback from channel %d", channel)
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("model2303: non-numeric readback %q: %w", resp, err)
	}
	return v, nil
}

func (d *Model2303) SetProtection(ctx context.Context, channel int, ovp, ocp float64) error {
	if ovp > 0 {
		if err := d.conn.Send(ctx, fmt.Sprintf("VOLT:PROT CH%d,%g", channel, ovp)); err != nil {
			return err
		}
	}
	if ocp > 0 {
		if err := d.conn.Send(ctx, fmt.Sprintf("CURR:PROT CH%d,%g", channel, ocp)); err != nil {
			return err
		}
	}
	return nil
}
