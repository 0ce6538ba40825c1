// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/webpdtool/webpdtool/internal/instrument"
)

// RelayDriver switches named relays on a SCPI-controlled relay box. Relay
// names map to channel lists through the instrument settings, e.g.
// settings: {relays: {PWR: "(@101)", RF1: "(@102,103)"}}.
type RelayDriver struct {
	conn   *scpiConn
	relays map[string]string
}

// NewRelay is the driver factory for type "relay".
func NewRelay(cfg instrument.Config) (instrument.Driver, error) {
	relays := make(map[string]string)
	if raw, ok := cfg.Settings["relays"].(map[string]any); ok {
		for name, v := range raw {
			if s, ok := v.(string); ok {
				relays[strings.ToUpper(name)] = s
			}
		}
	}
	return &RelayDriver{conn: newSCPIConn(cfg), relays: relays}, nil
}

func (d *RelayDriver) Initialize(ctx context.Context) error {
	return d.conn.Initialize(ctx)
}

func (d *RelayDriver) Reset(ctx context.Context) error {
	return d.conn.Send(ctx, "*RST")
}

func (d *RelayDriver) Close() error {
	return d.conn.Close()
}

func (d *RelayDriver) ExecuteCommand(ctx context.Context, params map[string]any) (string, error) {
	relay, _ := params["relay_name"].(string)
	action, _ := params["action"].(string)
	if err := d.Switch(ctx, relay, action); err != nil {
		return "", err
	}
	return strings.ToUpper(action), nil
}

func (d *RelayDriver) Switch(ctx context.Context, relay, action string) error {
	channels, ok := d.relays[strings.ToUpper(relay)]
	if !ok {
		return fmt.Errorf("unknown relay %q", relay)
	}
	switch strings.ToUpper(action) {
	case "ON":
		return d.conn.Send(ctx, "ROUT:CLOS "+channels)
	case "OFF":
		return d.conn.Send(ctx, "ROUT:OPEN "+channels)
	default:
		return fmt.Errorf("relay action must be ON or OFF, got %q", action)
	}
}
