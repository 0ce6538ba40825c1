// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package validate casts raw measured values to their declared value type
// and tests them against the declared limit rule.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
)

// NoInstrumentSentinel is returned by drivers when real hardware produced
// no response; the validator forces ERROR when it sees it.
const NoInstrumentSentinel = "No instrument found"

// floatTolerance is the relative tolerance used for float equality.
const floatTolerance = 1e-9

// Limits bundles the limit rule of one test item.
type Limits struct {
	Type  plan.LimitType
	Lower *float64
	Upper *float64
	Eq    string
}

// LimitsFromItem extracts the limit rule from a test item.
func LimitsFromItem(it plan.TestItem) Limits {
	return Limits{Type: it.LimitType, Lower: it.LowerLimit, Upper: it.UpperLimit, Eq: it.EqLimit}
}

// Value is a raw measurement cast to its declared type. Num is set only
// when the value has a numeric form.
type Value struct {
	Num  *float64
	Text string
}

// Cast converts a raw measured value (string, number, or nil) to the
// declared value type.
func Cast(raw any, vt plan.ValueType) (Value, error) {
	switch vt {
	case plan.ValueString:
		if raw == nil {
			return Value{}, nil
		}
		return Value{Text: stringify(raw)}, nil
	case plan.ValueInteger:
		n, err := castInteger(raw)
		if err != nil {
			return Value{}, err
		}
		f := float64(n)
		return Value{Num: &f, Text: strconv.FormatInt(n, 10)}, nil
	case plan.ValueFloat:
		f, err := castFloat(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Num: &f, Text: strconv.FormatFloat(f, 'f', -1, 64)}, nil
	default:
		// No declared type: keep the numeric form when the raw value has one.
		if raw == nil {
			return Value{}, nil
		}
		if f, ok := numeric(raw); ok {
			return Value{Num: &f, Text: stringify(raw)}, nil
		}
		return Value{Text: stringify(raw)}, nil
	}
}

// Validate casts the raw measurement and applies the limit rule.
// ERROR means the value could not be evaluated; FAIL means it was evaluated
// and is out of limits.
func Validate(raw any, vt plan.ValueType, lim Limits) (result.Outcome, string) {
	if s, ok := raw.(string); ok && strings.EqualFold(strings.TrimSpace(s), NoInstrumentSentinel) {
		return result.Error, NoInstrumentSentinel
	}

	// limit_type none (or absent) always passes, even for values that would
	// not cast.
	if lim.Type == plan.LimitNone || lim.Type == plan.LimitUnset {
		return result.Pass, ""
	}

	v, err := Cast(raw, vt)
	if err != nil {
		return result.Error, err.Error()
	}

	switch lim.Type {
	case plan.LimitLower:
		return compareBounds(v, lim.Lower, nil)
	case plan.LimitUpper:
		return compareBounds(v, nil, lim.Upper)
	case plan.LimitBoth:
		return compareBounds(v, lim.Lower, lim.Upper)
	case plan.LimitEquality:
		return compareEquality(v, vt, lim.Eq, false)
	case plan.LimitInequality:
		return compareEquality(v, vt, lim.Eq, true)
	case plan.LimitPartial:
		if strings.Contains(v.Text, lim.Eq) {
			return result.Pass, ""
		}
		return result.Fail, fmt.Sprintf("%q does not contain %q", v.Text, lim.Eq)
	default:
		return result.Error, fmt.Sprintf("unknown limit type %q", lim.Type)
	}
}

func compareBounds(v Value, lower, upper *float64) (result.Outcome, string) {
	if v.Num == nil {
		// Try the text form before giving up; operators sometimes declare
		// string items with numeric limits.
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return result.Error, fmt.Sprintf("cannot compare non-numeric value %q against limits", v.Text)
		}
		v.Num = &f
	}
	if lower != nil && *v.Num < *lower {
		return result.Fail, fmt.Sprintf("%v below lower limit %v", *v.Num, *lower)
	}
	if upper != nil && *v.Num > *upper {
		return result.Fail, fmt.Sprintf("%v above upper limit %v", *v.Num, *upper)
	}
	return result.Pass, ""
}

func compareEquality(v Value, vt plan.ValueType, eq string, negate bool) (result.Outcome, string) {
	equal := false
	if v.Num != nil {
		want, err := strconv.ParseFloat(strings.TrimSpace(eq), 64)
		if err != nil {
			return result.Error, fmt.Sprintf("eq_limit %q is not numeric", eq)
		}
		if vt == plan.ValueFloat {
			equal = floatEqual(*v.Num, want)
		} else {
			equal = *v.Num == want
		}
	} else {
		equal = v.Text == eq
	}
	if negate {
		equal = !equal
	}
	if equal {
		return result.Pass, ""
	}
	if negate {
		return result.Fail, fmt.Sprintf("%q equals %q", v.Text, eq)
	}
	return result.Fail, fmt.Sprintf("%q does not equal %q", v.Text, eq)
}

func floatEqual(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= scale*floatTolerance
}

func castInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("cannot cast null to integer")
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("cannot cast %v to integer", v)
		}
		return int64(v), nil
	case string:
		s := strings.TrimSpace(v)
		// base 0 accepts decimal plus 0x/0o/0b prefixes
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot cast %q to integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot cast %T to integer", raw)
	}
}

func castFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("cannot cast null to float")
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("cannot cast %v to float", v)
		}
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("cannot cast %q to float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot cast %T to float", raw)
	}
}

func numeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Stringify renders a raw measured value for reports and substitution.
func Stringify(raw any) string { return stringify(raw) }

// Numeric reports the finite decimal form of a raw measured value, if any.
func Numeric(raw any) (float64, bool) { return numeric(raw) }
