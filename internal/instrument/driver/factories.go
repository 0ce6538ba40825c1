// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/webpdtool/webpdtool/internal/instrument"
)

// Factories is the built-up table of known instrument types. Aliases are
// resolved here, at registration time, not at call time.
func Factories() map[string]instrument.DriverFactory {
	return map[string]instrument.DriverFactory{
		"DAQ973A":   NewDAQ973A,
		"MODEL2303": NewModel2303,
		"CMW100":    NewSCPIGeneric,
		"scpi":      NewSCPIGeneric,
		"relay":     NewRelay,
		"console":   NewConsole,
		"comport":   NewComPort,
		"tcpip":     NewTCPIP,
		"dummy":     NewDummy,
	}
}

// SCPIGeneric exposes the raw SCPI transport for instruments without a
// dedicated driver (e.g. the CMW100 RF tester, driven entirely through
// templated commands).
type SCPIGeneric struct {
	conn *scpiConn
}

// NewSCPIGeneric is the driver factory for generic SCPI instruments.
func NewSCPIGeneric(cfg instrument.Config) (instrument.Driver, error) {
	return &SCPIGeneric{conn: newSCPIConn(cfg)}, nil
}

func (d *SCPIGeneric) Initialize(ctx context.Context) error {
	return d.conn.Initialize(ctx)
}

func (d *SCPIGeneric) Reset(ctx context.Context) error {
	return d.conn.Send(ctx, "*RST")
}

func (d *SCPIGeneric) Close() error {
	return d.conn.Close()
}

func (d *SCPIGeneric) ExecuteCommand(ctx context.Context, params map[string]any) (string, error) {
	cmd, _ := params["command"].(string)
	if cmd == "" {
		return "", fmt.Errorf("scpi: missing command")
	}
	if strings.HasSuffix(cmd, "?") {
		return d.conn.Query(ctx, cmd)
	}
	return "", d.conn.Send(ctx, cmd)
}
