// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package measure routes test items to their measurement implementation and
// turns every outcome, including failures, into a result record.
package measure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/instrument/pool"
	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/measure/resolve"
	"github.com/webpdtool/webpdtool/internal/measure/template"
	"github.com/webpdtool/webpdtool/internal/metrics"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/validate"
)

// defaultItemTimeout bounds any item that declares no timeout of its own.
const defaultItemTimeout = 30 * time.Second

// commandDefaultTimeout matches the driver-level default for command items.
const commandDefaultTimeout = 5 * time.Second

// Measurement executes one resolved test item and returns the raw measured
// value. Errors are converted to ERROR records by the dispatcher; an
// implementation never writes records itself.
type Measurement interface {
	Measure(ctx context.Context, item plan.TestItem, params resolve.Params) (any, error)
}

// MeasurementFunc adapts a function to the Measurement interface.
type MeasurementFunc func(ctx context.Context, item plan.TestItem, params resolve.Params) (any, error)

func (f MeasurementFunc) Measure(ctx context.Context, item plan.TestItem, params resolve.Params) (any, error) {
	return f(ctx, item, params)
}

// Dispatcher owns the kind registry. It is safe for concurrent use once
// built; registration happens only during construction.
type Dispatcher struct {
	pool       *pool.Pool
	scriptsDir string
	kinds      map[string]Measurement
	aliases    map[string]string
}

// NewDispatcher builds the dispatcher with every built-in measurement kind
// registered. scriptsDir is the base for script-backed items.
func NewDispatcher(p *pool.Pool, scriptsDir string) *Dispatcher {
	d := &Dispatcher{
		pool:       p,
		scriptsDir: scriptsDir,
		kinds:      make(map[string]Measurement),
		aliases:    make(map[string]string),
	}
	d.register("command", MeasurementFunc(d.measureCommand), "command_test", "console")
	d.register("script", MeasurementFunc(d.measureScript), "other")
	d.register("wait", MeasurementFunc(measureWait))
	d.register("powerset", MeasurementFunc(d.measurePowerSet), "power_set")
	d.register("powerread", MeasurementFunc(d.measurePowerRead), "power_read")
	d.register("relay", MeasurementFunc(d.measureRelay), "relay_switch")
	d.register("sfcstep", MeasurementFunc(d.measureSfcStep), "sfc_step")
	d.register("getsn", MeasurementFunc(d.measureGetSN), "get_sn")
	d.register("opjudge", MeasurementFunc(d.measureOpJudge), "op_judge")
	d.register("dummy", MeasurementFunc(measureDummy))
	return d
}

// register binds a kind and its test_type aliases. Aliases are resolved
// here, once, so dispatch is a single map lookup.
func (d *Dispatcher) register(kind string, m Measurement, aliases ...string) {
	d.kinds[kind] = m
	d.aliases[kind] = kind
	for _, a := range aliases {
		d.aliases[strings.ToLower(a)] = kind
	}
}

// Kind maps a (test_type, switch_mode) to the registered kind name. The
// command transports double as switch modes: an unknown test_type with a
// console/comport/tcpip switch_mode still dispatches as a command.
func (d *Dispatcher) Kind(testType, switchMode string) (string, bool) {
	tt := strings.ToLower(strings.TrimSpace(testType))
	if kind, ok := d.aliases[tt]; ok {
		return kind, true
	}
	switch strings.ToLower(strings.TrimSpace(switchMode)) {
	case "console", "comport", "tcpip":
		return "command", true
	}
	return "", false
}

// Execute runs one test item end to end: parameter resolution, measurement,
// validation. It never returns an error; anything that goes wrong becomes
// an ERROR record so the session loop always has exactly one record per
// item.
func (d *Dispatcher) Execute(ctx context.Context, item plan.TestItem, prior resolve.PriorResults) result.Record {
	start := time.Now()
	rec := result.Record{
		ItemNo:    item.ItemNo,
		ItemName:  item.ItemName,
		Timestamp: start,
	}
	logger := log.FromContext(ctx).With().
		Int("item_no", item.ItemNo).
		Str("item_name", item.ItemName).
		Str("test_type", item.TestType).
		Logger()

	finish := func(r result.Record) result.Record {
		r.ExecutionMS = time.Since(start).Milliseconds()
		metrics.RecordItem(string(r.Outcome), item.TestType, time.Since(start))
		logger.Info().
			Str("outcome", string(r.Outcome)).
			Int64("execution_ms", r.ExecutionMS).
			Str("error", r.ErrorMessage).
			Msg("item executed")
		return r
	}

	kind, ok := d.Kind(item.TestType, item.SwitchMode)
	if !ok {
		rec.Outcome = result.Error
		rec.ErrorMessage = fmt.Sprintf("unknown measurement type/mode: %s/%s", item.TestType, item.SwitchMode)
		return finish(rec)
	}
	// A catalogued type with a switch_mode the catalog does not know must
	// not reach an instrument.
	if template.Known(item.TestType) {
		if _, ok := template.Lookup(item.TestType, item.SwitchMode); !ok {
			rec.Outcome = result.Error
			rec.ErrorMessage = fmt.Sprintf("unknown measurement type/mode: %s/%s", item.TestType, item.SwitchMode)
			return finish(rec)
		}
	}

	params, err := resolve.Resolve(item, prior)
	if err != nil {
		rec.Outcome = result.Error
		rec.ErrorMessage = err.Error()
		return finish(rec)
	}

	ctx, cancel := context.WithTimeout(ctx, itemTimeout(kind, params))
	defer cancel()

	raw, err := d.kinds[kind].Measure(ctx, item, params)
	if err != nil {
		rec.Outcome = result.Error
		rec.ErrorMessage = err.Error()
		return finish(rec)
	}

	if f, ok := validate.Numeric(raw); ok {
		rec.MeasuredValue = &f
	}
	if s, ok := raw.(string); ok {
		rec.MeasuredText = s
	}

	rec.Outcome, rec.ErrorMessage = validate.Validate(raw, item.ValueType, validate.LimitsFromItem(item))
	return finish(rec)
}

// itemTimeout picks the effective deadline for one item: the resolved
// timeout parameter in milliseconds, otherwise the kind's default.
func itemTimeout(kind string, params resolve.Params) time.Duration {
	if ms, ok := intParam(params, "timeout"); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if kind == "command" {
		return commandDefaultTimeout
	}
	return defaultItemTimeout
}

// intParam coerces a parameter that may arrive as int, float64 (JSON), or
// string.
func intParam(params resolve.Params, key string) (int, bool) {
	v, ok := params.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// floatParam coerces a numeric parameter.
func floatParam(params resolve.Params, key string) (float64, bool) {
	v, ok := params.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// withInstrument leases the instrument named by the params (or the given
// default id) for the duration of fn.
func (d *Dispatcher) withInstrument(ctx context.Context, params resolve.Params, defaultID string, fn func(drv instrument.Driver) (any, error)) (any, error) {
	id, _ := params.String("instrument")
	if id == "" {
		id = defaultID
	}
	if id == "" {
		return nil, fmt.Errorf("missing required parameter: Instrument")
	}
	lease, err := d.pool.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return fn(lease.Driver)
}
