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

// DAQ973A drives a Keysight DAQ973A data acquisition unit over SCPI.
type DAQ973A struct {
	conn *scpiConn
}

// NewDAQ973A is the driver factory for type "DAQ973A".
func NewDAQ973A(cfg instrument.Config) (instrument.Driver, error) {
	return &DAQ973A{conn: newSCPIConn(cfg)}, nil
}

func (d *DAQ973A) Initialize(ctx context.Context) error {
	if err := d.conn.Initialize(ctx); err != nil {
		return err
	}
	// Identify once so a mis-cabled instrument fails fast.
	idn, err := d.conn.Query(ctx, "*IDN?")
	if err != nil {
		return err
	}
	if idn == "" {
		return fmt.Errorf("%w: no IDN response", ErrConnectionFailed)
	}
	return nil
}

func (d *DAQ973A) Reset(ctx context.Context) error {
	return d.conn.Send(ctx, "*RST")
}

func (d *DAQ973A) Close() error {
	return d.conn.Close()
}

// ExecuteCommand passes a raw SCPI command through; "command" is required,
// commands ending in '?' are queries.
func (d *DAQ973A) ExecuteCommand(ctx context.Context, params map[string]any) (string, error) {
	cmd, _ := params["command"].(string)
	if cmd == "" {
		return "", fmt.Errorf("daq973a: missing command")
	}
	if strings.HasSuffix(cmd, "?") {
		return d.conn.Query(ctx, cmd)
	}
	return "", d.conn.Send(ctx, cmd)
}

// MeasureScalar reads one scalar from a channel, e.g. (101, "volt", "DC").
func (d *DAQ973A) MeasureScalar(ctx context.Context, channel int, item, typ string) (float64, error) {
	fn, err := scpiFunction(item, typ)
	if err != nil {
		return 0, err
	}
	resp, err := d.conn.Query(ctx, fmt.Sprintf("MEAS:%s? (@%d)", fn, channel))
	if err != nil {
		return 0, err
	}
	if resp == "" {
		return 0, fmt.Errorf("empty response from channel %d", channel)
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("daq973a: non-numeric response %q: %w", resp, err)
	}
	return v, nil
}

func scpiFunction(item, typ string) (string, error) {
	var fn string
	switch strings.ToLower(item) {
	case "volt", "voltage":
		fn = "VOLT"
	case "curr", "current":
		fn = "CURR"
	case "res", "resistance":
		return "RES", nil
	case "temp", "temperature":
		return "TEMP", nil
	case "freq", "frequency":
		return "FREQ", nil
	default:
		return "", fmt.Errorf("unsupported measurement item %q", item)
	}
	switch strings.ToUpper(typ) {
	case "DC", "":
		return fn + ":DC", nil
	case "AC":
		return fn + ":AC", nil
	default:
		return "", fmt.Errorf("unsupported measurement type %q", typ)
	}
}
