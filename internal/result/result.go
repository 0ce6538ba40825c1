// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package result defines measurement outcomes and the per-session
// append-only result log.
package result

import (
	"context"
	"strconv"
	"time"
)

// Outcome is the final verdict of one test item.
type Outcome string

const (
	Pass  Outcome = "PASS"
	Fail  Outcome = "FAIL"
	Error Outcome = "ERROR"
	Skip  Outcome = "SKIP"
)

// Record is the durable result of one test item execution.
//
// MeasuredValue carries the numeric form and is set only when the raw
// measurement parses as a finite decimal. MeasuredText carries the string
// form for the report writer and validator; the two channels are distinct
// so that text results are never coerced into the numeric column.
type Record struct {
	ItemNo        int       `json:"item_no"`
	ItemName      string    `json:"item_name"`
	Outcome       Outcome   `json:"outcome"`
	MeasuredValue *float64  `json:"measured_value,omitempty"`
	MeasuredText  string    `json:"measured_text,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ExecutionMS   int64     `json:"execution_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// ValueString returns the measured value as presented to reports: the text
// form when present, otherwise the shortest decimal rendering of the
// numeric form.
func (r Record) ValueString() string {
	if r.MeasuredText != "" {
		return r.MeasuredText
	}
	if r.MeasuredValue != nil {
		return strconv.FormatFloat(*r.MeasuredValue, 'f', -1, 64)
	}
	return ""
}

// Store is the append-only per-session result log (invariant: exactly one
// record per enabled item, recorded before the next item starts).
type Store interface {
	Append(ctx context.Context, rec Record) error
	GetByName(name string) (Record, bool)
	GetByOrdinal(n int) (Record, bool)
	All() []Record
}
