package measure

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpdtool/webpdtool/internal/instrument"
	"github.com/webpdtool/webpdtool/internal/instrument/driver"
	"github.com/webpdtool/webpdtool/internal/instrument/pool"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/validate"
)

func dummyConfig(id string, settings map[string]any) instrument.Config {
	return instrument.Config{
		ID:         id,
		Type:       "dummy",
		Enabled:    true,
		Connection: instrument.Connection{Type: instrument.ConnLocal},
		Settings:   settings,
	}
}

func newTestDispatcher(t *testing.T, cfgs map[string]instrument.Config) *Dispatcher {
	t.Helper()
	reg, err := instrument.NewRegistry(cfgs, driver.Factories())
	require.NoError(t, err)
	p := pool.New(reg, time.Minute)
	t.Cleanup(p.Close)
	return NewDispatcher(p, t.TempDir())
}

func fptr(f float64) *float64 { return &f }

func TestKindAliases(t *testing.T) {
	d := newTestDispatcher(t, nil)
	cases := []struct {
		testType, switchMode, want string
	}{
		{"Command", "console", "command"},
		{"COMMAND_TEST", "comport", "command"},
		{"Console", "", "command"},
		{"Other", "", "script"},
		{"Wait", "", "wait"},
		{"wait", "", "wait"},
		{"PowerSet", "MODEL2303", "powerset"},
		{"PowerRead", "DAQ973A", "powerread"},
		{"GetSN", "", "getsn"},
		{"homebrew", "tcpip", "command"}, // transport mode rescues unknown types
	}
	for _, tc := range cases {
		kind, ok := d.Kind(tc.testType, tc.switchMode)
		require.True(t, ok, "%s/%s", tc.testType, tc.switchMode)
		assert.Equal(t, tc.want, kind)
	}

	_, ok := d.Kind("teleport", "quantum")
	assert.False(t, ok)
}

func TestExecuteUnknownTypeBecomesError(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "Mystery", TestType: "teleport", SwitchMode: "quantum",
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Equal(t, "unknown measurement type/mode: teleport/quantum", rec.ErrorMessage)
	assert.GreaterOrEqual(t, rec.ExecutionMS, int64(0))
}

func TestExecuteUnknownModeBecomesError(t *testing.T) {
	d := newTestDispatcher(t, map[string]instrument.Config{
		"daq_1": dummyConfig("daq_1", nil),
	})
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "ReadRail", TestType: "PowerRead", SwitchMode: "bogus",
		Parameters: map[string]any{"Instrument": "daq_1", "Channel": 101},
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Equal(t, "unknown measurement type/mode: PowerRead/bogus", rec.ErrorMessage)
}

func TestExecuteMissingParamBecomesError(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "SetRail", TestType: "PowerSet", SwitchMode: "MODEL2303",
		Parameters: map[string]any{"Instrument": "psu_1"},
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Equal(t, "missing required parameter: SetVolt", rec.ErrorMessage)
}

func TestExecuteConsoleCommandWithLimits(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "ReadRail", TestType: "Command", SwitchMode: "console",
		Parameters: map[string]any{"Command": "echo 5.01"},
		ValueType:  plan.ValueFloat,
		LimitType:  plan.LimitBoth,
		LowerLimit: fptr(4.8),
		UpperLimit: fptr(5.2),
	}, nil)
	assert.Equal(t, result.Pass, rec.Outcome, rec.ErrorMessage)
	require.NotNil(t, rec.MeasuredValue)
	assert.Equal(t, 5.01, *rec.MeasuredValue)
	assert.Equal(t, "5.01", rec.MeasuredText)
}

func TestExecuteConsoleEmptyResponseIsError(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "Silent", TestType: "Command", SwitchMode: "console",
		Parameters: map[string]any{"Command": "true"},
		LimitType:  plan.LimitPartial,
		EqLimit:    "OK",
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Equal(t, validate.NoInstrumentSentinel, rec.ErrorMessage)
	assert.Equal(t, validate.NoInstrumentSentinel, rec.MeasuredText)
}

func TestExecuteCommandTimeout(t *testing.T) {
	d := newTestDispatcher(t, nil)
	start := time.Now()
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "Slow", TestType: "Command", SwitchMode: "console",
		Parameters: map[string]any{"Command": "sleep 10", "Timeout": 200},
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Equal(t, "timeout after 200ms", rec.ErrorMessage)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecutePowerSetAndReadback(t *testing.T) {
	d := newTestDispatcher(t, map[string]instrument.Config{
		"psu_1": dummyConfig("psu_1", nil),
	})
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "SetRail", TestType: "PowerSet", SwitchMode: "MODEL2303",
		Parameters: map[string]any{
			"Instrument": "psu_1", "SetVolt": 5.0, "SetCurr": 1.0, "Channel": 1,
		},
		ValueType:  plan.ValueFloat,
		LimitType:  plan.LimitBoth,
		LowerLimit: fptr(4.9),
		UpperLimit: fptr(5.1),
	}, nil)
	assert.Equal(t, result.Pass, rec.Outcome, rec.ErrorMessage)
	require.NotNil(t, rec.MeasuredValue)
	assert.Equal(t, 5.0, *rec.MeasuredValue)
}

func TestExecutePowerReadScalar(t *testing.T) {
	d := newTestDispatcher(t, map[string]instrument.Config{
		"daq_1": dummyConfig("daq_1", map[string]any{"scalar": 3.3}),
	})
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "Read3V3", TestType: "PowerRead", SwitchMode: "DAQ973A",
		Parameters: map[string]any{
			"Instrument": "daq_1", "Channel": 101, "Item": "volt", "Type": "DC",
		},
		ValueType:  plan.ValueFloat,
		LimitType:  plan.LimitLower,
		LowerLimit: fptr(3.0),
	}, nil)
	assert.Equal(t, result.Pass, rec.Outcome, rec.ErrorMessage)
	require.NotNil(t, rec.MeasuredValue)
	assert.Equal(t, 3.3, *rec.MeasuredValue)
}

func TestExecuteWait(t *testing.T) {
	d := newTestDispatcher(t, nil)
	start := time.Now()
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "Settle", TestType: "Wait", WaitMSec: 50,
	}, nil)
	assert.Equal(t, result.Pass, rec.Outcome)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	rec = d.Execute(context.Background(), plan.TestItem{
		ItemNo: 2, ItemName: "BadWait", TestType: "Wait",
		Parameters: map[string]any{"wait_msec": -5},
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Contains(t, rec.ErrorMessage, "must be positive")
}

func TestExecuteRelay(t *testing.T) {
	d := newTestDispatcher(t, map[string]instrument.Config{
		"relay_1": dummyConfig("relay_1", nil),
	})
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "PowerOn", TestType: "Relay",
		Parameters: map[string]any{"Instrument": "relay_1", "RelayName": "PWR", "Action": "on"},
		LimitType:  plan.LimitEquality,
		EqLimit:    "ON",
		ValueType:  plan.ValueString,
	}, nil)
	assert.Equal(t, result.Pass, rec.Outcome, rec.ErrorMessage)
	assert.Equal(t, "ON", rec.MeasuredText)
}

func TestExecuteUseResultSubstitution(t *testing.T) {
	d := newTestDispatcher(t, nil)
	prior := result.NewMemoryStore()
	v := 5.0
	require.NoError(t, prior.Append(context.Background(), result.Record{
		ItemNo: 1, ItemName: "ReadRail", Outcome: result.Pass, MeasuredValue: &v,
	}))

	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 2, ItemName: "EchoPrior", TestType: "Command", SwitchMode: "console",
		Parameters: map[string]any{"Command": "echo prior"},
		UseResult:  "ReadRail",
		LimitType:  plan.LimitPartial,
		EqLimit:    "prior",
	}, prior)
	assert.Equal(t, result.Pass, rec.Outcome, rec.ErrorMessage)

	rec = d.Execute(context.Background(), plan.TestItem{
		ItemNo: 3, ItemName: "DanglingRef", TestType: "Command", SwitchMode: "console",
		Parameters: map[string]any{"Command": "echo hi"},
		UseResult:  "NoSuchItem",
	}, prior)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Contains(t, rec.ErrorMessage, "use_result reference not found")
}

func TestExecuteDummy(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "Smoke", TestType: "Dummy",
		Parameters: map[string]any{"Value": 42},
		ValueType:  plan.ValueInteger,
		LimitType:  plan.LimitEquality,
		EqLimit:    "42",
	}, nil)
	assert.Equal(t, result.Pass, rec.Outcome, rec.ErrorMessage)

	rec = d.Execute(context.Background(), plan.TestItem{
		ItemNo: 2, ItemName: "Broken", TestType: "Dummy",
		Parameters: map[string]any{"Fail": true},
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
}

func TestExecuteScriptNotFound(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "CalcOffset", TestType: "Other",
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Contains(t, rec.ErrorMessage, "SCRIPT_NOT_FOUND")
	assert.Contains(t, rec.ErrorMessage, "CalcOffset.py")
}

func TestScriptNamedBySwitchMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test123.py"), []byte("print(1)\n"), 0o755))

	reg, err := instrument.NewRegistry(nil, driver.Factories())
	require.NoError(t, err)
	p := pool.New(reg, time.Minute)
	t.Cleanup(p.Close)
	d := NewDispatcher(p, dir)

	// The mode names the script; the extension is optional. Only path
	// resolution is under test, so the not-found branch must not fire.
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "A", TestType: "Other", SwitchMode: "test123",
	}, nil)
	assert.NotContains(t, rec.ErrorMessage, "SCRIPT_NOT_FOUND")

	rec = d.Execute(context.Background(), plan.TestItem{
		ItemNo: 2, ItemName: "B", TestType: "Other", SwitchMode: "missing_mode",
	}, nil)
	assert.Equal(t, result.Error, rec.Outcome)
	assert.Contains(t, rec.ErrorMessage, "SCRIPT_NOT_FOUND")
	assert.Contains(t, rec.ErrorMessage, "missing_mode.py")
}

func TestParseScriptOutput(t *testing.T) {
	assert.Equal(t, int64(7), parseScriptOutput("7\n"))
	assert.Equal(t, 3.14, parseScriptOutput("debug line\n3.14\n"))
	assert.Equal(t, "ready", parseScriptOutput("ready\n\n"))
	assert.Equal(t, "", parseScriptOutput(""))
}

func TestOpJudgeInlineResult(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "LEDCheck", TestType: "OpJudge",
		Parameters: map[string]any{"Prompt": "LED green?", "Result": "PASS"},
		ValueType:  plan.ValueString,
		LimitType:  plan.LimitEquality,
		EqLimit:    "PASS",
	}, nil)
	assert.Equal(t, result.Pass, rec.Outcome, rec.ErrorMessage)
}

func TestScriptsDirRelativeFile(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "noop.py")
	require.NoError(t, os.WriteFile(script, []byte("print(1)\n"), 0o755))

	reg, err := instrument.NewRegistry(nil, driver.Factories())
	require.NoError(t, err)
	p := pool.New(reg, time.Minute)
	t.Cleanup(p.Close)
	d := NewDispatcher(p, dir)

	// Only the path resolution is under test here; the python interpreter
	// may be absent on CI, so the not-found branch must not fire.
	rec := d.Execute(context.Background(), plan.TestItem{
		ItemNo: 1, ItemName: "noop", TestType: "Other",
		Parameters: map[string]any{"script": "noop.py"},
	}, nil)
	assert.NotContains(t, rec.ErrorMessage, "SCRIPT_NOT_FOUND")
}
