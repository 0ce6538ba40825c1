// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"fmt"
	"strings"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/instrument/driver"
	"github.com/webpdtool/webpdtool/internal/measure/resolve"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/validate"
)

// builtinForMode maps a command switch_mode to its built-in instrument, so
// plans may omit the Instrument parameter for the host-local transports.
func builtinForMode(switchMode string) string {
	switch strings.ToLower(strings.TrimSpace(switchMode)) {
	case "console":
		return instrument.BuiltinConsole
	case "comport":
		return instrument.BuiltinComPort
	case "tcpip":
		return instrument.BuiltinTCPIP
	default:
		return ""
	}
}

// measureCommand sends one command through the item's transport and returns
// the response text. An empty response from live hardware is reported with
// the no-instrument sentinel so validation turns it into an ERROR.
func (d *Dispatcher) measureCommand(ctx context.Context, item plan.TestItem, params resolve.Params) (any, error) {
	if cmd, _ := params.String("command"); cmd == "" {
		return nil, fmt.Errorf("missing required parameter: Command")
	}
	return d.withInstrument(ctx, params, builtinForMode(item.SwitchMode), func(drv instrument.Driver) (any, error) {
		out, err := drv.ExecuteCommand(ctx, params)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(out) == "" {
			return validate.NoInstrumentSentinel, nil
		}
		return out, nil
	})
}

// measureSfcStep reports a production step to the shop-floor system. The
// step name doubles as the command when none is given.
func (d *Dispatcher) measureSfcStep(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	step, _ := params.String("step")
	if step == "" {
		return nil, fmt.Errorf("missing required parameter: Step")
	}
	if !params.Has("command") {
		params.Set("command", step)
	}
	return d.withInstrument(ctx, params, instrument.BuiltinTCPIP, func(drv instrument.Driver) (any, error) {
		return drv.ExecuteCommand(ctx, params)
	})
}

// measureGetSN reads the unit serial number from the DUT.
func (d *Dispatcher) measureGetSN(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	if cmd, _ := params.String("command"); cmd == "" {
		return nil, fmt.Errorf("missing required parameter: Command")
	}
	return d.withInstrument(ctx, params, instrument.BuiltinConsole, func(drv instrument.Driver) (any, error) {
		out, err := drv.ExecuteCommand(ctx, params)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(out), nil
	})
}

// measureOpJudge records an operator judgement. Unattended runs supply the
// verdict through the "result" parameter; otherwise the prompt is forwarded
// to the station console and its answer is the verdict.
func (d *Dispatcher) measureOpJudge(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	if verdict, ok := params.String("result"); ok && verdict != "" {
		return verdict, nil
	}
	prompt, _ := params.String("prompt")
	if prompt == "" {
		return nil, fmt.Errorf("missing required parameter: Prompt")
	}
	if !params.Has("command") {
		params.Set("command", prompt)
	}
	return d.withInstrument(ctx, params, instrument.BuiltinConsole, func(drv instrument.Driver) (any, error) {
		out, err := drv.ExecuteCommand(ctx, params)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(out), nil
	})
}

// measureRelay switches a named relay and reports the applied action.
func (d *Dispatcher) measureRelay(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	relay, _ := params.String("relay_name")
	if relay == "" {
		return nil, fmt.Errorf("missing required parameter: RelayName")
	}
	action, _ := params.String("action")
	if action == "" {
		return nil, fmt.Errorf("missing required parameter: Action")
	}
	return d.withInstrument(ctx, params, "", func(drv instrument.Driver) (any, error) {
		if box, ok := drv.(driver.RelayBox); ok {
			if err := box.Switch(ctx, relay, action); err != nil {
				return nil, err
			}
			return strings.ToUpper(action), nil
		}
		return drv.ExecuteCommand(ctx, params)
	})
}
