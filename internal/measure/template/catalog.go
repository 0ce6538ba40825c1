// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package template holds the static catalog of known
// (test_type, switch_mode) combinations and their parameter schemas.
// The catalog is immutable at runtime and case-insensitive on both keys.
package template

import (
	"sort"
	"strings"

	"github.com/webpdtool/webpdtool/internal/plan"
)

// DefaultMode is the switch_mode bucket for types that do not specialise.
const DefaultMode = "default"

// Spec describes the parameter schema of one (test_type, switch_mode).
type Spec struct {
	Required []string       `json:"required"`
	Optional []string       `json:"optional"`
	Example  map[string]any `json:"example"`
}

// catalog is keyed by lower-cased test_type, then lower-cased switch_mode.
var catalog = map[string]map[string]Spec{
	"powerread": {
		"daq973a": {
			Required: []string{"Instrument", "Channel", "Item", "Type"},
			Optional: []string{"Delay"},
			Example:  map[string]any{"Instrument": "daq973a_1", "Channel": 101, "Item": "volt", "Type": "DC"},
		},
		"model2303": {
			Required: []string{"Instrument", "Channel"},
			Optional: []string{"Delay"},
			Example:  map[string]any{"Instrument": "psu_1", "Channel": 1},
		},
	},
	"powerset": {
		"model2303": {
			Required: []string{"Instrument", "SetVolt", "SetCurr", "Channel"},
			Optional: []string{"OVP", "OCP", "Delay"},
			Example:  map[string]any{"Instrument": "psu_1", "SetVolt": 5.0, "SetCurr": 1.0, "Channel": 1},
		},
	},
	// Instrument is optional for the command transports: each switch_mode
	// has a built-in instrument (console_1, comport_1, tcpip_1).
	"command": {
		"console": {
			Required: []string{"Command"},
			Optional: []string{"Instrument", "Timeout", "ResponseLineCount", "SettlingTime"},
			Example:  map[string]any{"Instrument": "console_1", "Command": "echo OK"},
		},
		"comport": {
			Required: []string{"Command"},
			Optional: []string{"Instrument", "Timeout", "ResponseLineCount", "SettlingTime", "Port"},
			Example:  map[string]any{"Instrument": "comport_1", "Command": "AT"},
		},
		"tcpip": {
			Required: []string{"Command"},
			Optional: []string{"Instrument", "Timeout", "ResponseLineCount", "SettlingTime", "Host", "Port"},
			Example:  map[string]any{"Instrument": "tcpip_1", "Command": "*IDN?"},
		},
	},
	"other": {
		DefaultMode: {
			Optional: []string{"use_result"},
			Example:  map[string]any{"use_result": "PrevItem"},
		},
	},
	"wait": {
		DefaultMode: {
			Required: []string{"wait_msec"},
			Example:  map[string]any{"wait_msec": 1000},
		},
	},
	"relay": {
		DefaultMode: {
			Required: []string{"Instrument", "RelayName", "Action"},
			Example:  map[string]any{"Instrument": "relay_1", "RelayName": "PWR", "Action": "ON"},
		},
	},
	"sfcstep": {
		DefaultMode: {
			Required: []string{"Instrument", "Step"},
			Optional: []string{"Timeout"},
			Example:  map[string]any{"Instrument": "tcpip_1", "Step": "CHECK_ROUTE"},
		},
	},
	"getsn": {
		DefaultMode: {
			Required: []string{"Instrument"},
			Optional: []string{"Command", "Timeout"},
			Example:  map[string]any{"Instrument": "console_1"},
		},
	},
	"opjudge": {
		DefaultMode: {
			Required: []string{"Prompt"},
			Optional: []string{"Timeout"},
			Example:  map[string]any{"Prompt": "LED green?"},
		},
	},
	"dummy": {
		DefaultMode: {
			Optional: []string{"Instrument", "Value", "SleepMs", "Fail"},
			Example:  map[string]any{"Value": 42},
		},
	},
}

// Lookup returns the spec for a (test_type, switch_mode), falling back to
// the type's default mode when the mode has no dedicated entry.
func Lookup(testType, switchMode string) (Spec, bool) {
	modes, ok := catalog[strings.ToLower(strings.TrimSpace(testType))]
	if !ok {
		return Spec{}, false
	}
	if spec, ok := modes[strings.ToLower(strings.TrimSpace(switchMode))]; ok {
		return spec, true
	}
	spec, ok := modes[DefaultMode]
	return spec, ok
}

// Known reports whether a test_type has any catalog entry.
func Known(testType string) bool {
	_, ok := catalog[strings.ToLower(strings.TrimSpace(testType))]
	return ok
}

// All returns a deep copy of the catalog for external queries.
func All() map[string]map[string]Spec {
	out := make(map[string]map[string]Spec, len(catalog))
	for typ, modes := range catalog {
		cp := make(map[string]Spec, len(modes))
		for mode, spec := range modes {
			cp[mode] = Spec{
				Required: append([]string(nil), spec.Required...),
				Optional: append([]string(nil), spec.Optional...),
				Example:  copyExample(spec.Example),
			}
		}
		out[typ] = cp
	}
	return out
}

// Types returns the known test types, sorted.
func Types() []string {
	out := make([]string, 0, len(catalog))
	for typ := range catalog {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// ValidationTypes lists the accepted value_type and limit_type enums.
func ValidationTypes() (valueTypes, limitTypes []string) {
	return plan.ValueTypes(), plan.LimitTypes()
}

func copyExample(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
