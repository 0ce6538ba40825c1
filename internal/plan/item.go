// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package plan

// ValueType declares how a raw measured value is cast before limit checks.
type ValueType string

const (
	ValueNone    ValueType = ""
	ValueString  ValueType = "string"
	ValueInteger ValueType = "integer"
	ValueFloat   ValueType = "float"
)

// LimitType declares the limit rule applied to a cast measured value.
type LimitType string

const (
	LimitUnset      LimitType = ""
	LimitNone       LimitType = "none"
	LimitLower      LimitType = "lower"
	LimitUpper      LimitType = "upper"
	LimitBoth       LimitType = "both"
	LimitEquality   LimitType = "equality"
	LimitInequality LimitType = "inequality"
	LimitPartial    LimitType = "partial"
)

// ValueTypes lists the accepted value_type strings.
func ValueTypes() []string {
	return []string{string(ValueString), string(ValueInteger), string(ValueFloat)}
}

// LimitTypes lists the accepted limit_type strings.
func LimitTypes() []string {
	return []string{
		string(LimitNone), string(LimitLower), string(LimitUpper),
		string(LimitBoth), string(LimitEquality), string(LimitInequality),
		string(LimitPartial),
	}
}

// TestItem is one row of a test plan. Items are immutable within a session.
type TestItem struct {
	ItemNo     int            `json:"item_no"`
	ItemName   string         `json:"item_name"`
	TestType   string         `json:"test_type"`
	SwitchMode string         `json:"switch_mode"`
	Parameters map[string]any `json:"parameters,omitempty"`
	ValueType  ValueType      `json:"value_type,omitempty"`
	LimitType  LimitType      `json:"limit_type,omitempty"`
	LowerLimit *float64       `json:"lower_limit,omitempty"`
	UpperLimit *float64       `json:"upper_limit,omitempty"`
	EqLimit    string         `json:"eq_limit,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	UseResult  string         `json:"use_result,omitempty"`
	Enabled    bool           `json:"enabled"`
	TimeoutMS  int            `json:"timeout_ms,omitempty"`
	WaitMSec   int            `json:"wait_msec,omitempty"`
}
