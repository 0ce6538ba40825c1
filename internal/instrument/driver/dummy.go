// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/webpdtool/webpdtool/internal/instrument"
)

// Dummy is a fully in-memory driver used by tests and by "Dummy" plan
// items. Behaviour is steered through instrument settings and call
// parameters rather than hardware.
type Dummy struct {
	cfg instrument.Config

	mu          sync.Mutex
	initialized bool
	closed      bool
	calls       []string

	// Scalar is returned by MeasureScalar.
	Scalar float64
	// Response is returned by ExecuteCommand when params carry no "response".
	Response string
	// FailInit makes Initialize return ErrConnectionFailed.
	FailInit bool
}

// NewDummy is the driver factory for type "dummy".
func NewDummy(cfg instrument.Config) (instrument.Driver, error) {
	d := &Dummy{cfg: cfg, Scalar: 0, Response: "OK"}
	if v, ok := cfg.Settings["scalar"].(float64); ok {
		d.Scalar = v
	}
	if v, ok := cfg.Settings["response"].(string); ok {
		d.Response = v
	}
	if v, ok := cfg.Settings["fail_init"].(bool); ok {
		d.FailInit = v
	}
	return d, nil
}

func (d *Dummy) Initialize(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailInit {
		return fmt.Errorf("%w: dummy configured to fail", ErrConnectionFailed)
	}
	d.initialized = true
	d.closed = false
	return nil
}

func (d *Dummy) Reset(context.Context) error {
	d.record("reset")
	return nil
}

func (d *Dummy) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Dummy) ExecuteCommand(_ context.Context, params map[string]any) (string, error) {
	d.record("execute")
	if resp, ok := params["response"].(string); ok {
		return resp, nil
	}
	return d.Response, nil
}

func (d *Dummy) MeasureScalar(_ context.Context, channel int, item, typ string) (float64, error) {
	d.record(fmt.Sprintf("measure:%d:%s:%s", channel, item, typ))
	return d.Scalar, nil
}

func (d *Dummy) SetOutput(_ context.Context, channel int, volt, curr float64) error {
	d.record(fmt.Sprintf("set:%d:%g:%g", channel, volt, curr))
	d.mu.Lock()
	d.Scalar = volt
	d.mu.Unlock()
	return nil
}

func (d *Dummy) ReadbackVoltage(context.Context, int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Scalar, nil
}

func (d *Dummy) SetProtection(_ context.Context, channel int, ovp, ocp float64) error {
	d.record(fmt.Sprintf("prot:%d:%g:%g", channel, ovp, ocp))
	return nil
}

func (d *Dummy) Switch(_ context.Context, relay, action string) error {
	d.record(fmt.Sprintf("relay:%s:%s", relay, action))
	return nil
}

// Initialized reports whether Initialize ran since the last Close.
func (d *Dummy) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized && !d.closed
}

// Calls returns the recorded call log.
func (d *Dummy) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Dummy) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}
