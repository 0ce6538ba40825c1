// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"fmt"

	"github.com/webpdtool/webpdtool/internal/measure/resolve"
	"github.com/webpdtool/webpdtool/internal/measure/template"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
)

// ExecuteMeasurement runs one ad-hoc test item outside any session. There
// are no prior results, so use_result references resolve to nothing and
// report an ERROR.
func (d *Dispatcher) ExecuteMeasurement(ctx context.Context, item plan.TestItem) result.Record {
	return d.Execute(ctx, item, nil)
}

// ValidationReport is the answer to a dry-run parameter check.
type ValidationReport struct {
	Valid       bool           `json:"valid"`
	Missing     []string       `json:"missing,omitempty"`
	Unknown     []string       `json:"unknown,omitempty"`
	Suggestions map[string]any `json:"suggestions,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// ValidateParameters checks a parameter map against the template catalog
// without touching any instrument. Suggestions carry example values for the
// missing required parameters.
func (d *Dispatcher) ValidateParameters(testType, switchMode string, params map[string]any) ValidationReport {
	if _, ok := d.Kind(testType, switchMode); !ok {
		return ValidationReport{
			Message: fmt.Sprintf("unknown measurement type/mode: %s/%s", testType, switchMode),
		}
	}
	spec, ok := template.Lookup(testType, switchMode)
	if !ok {
		// Dispatchable but untemplated: nothing to check against.
		return ValidationReport{Valid: true}
	}

	p := make(resolve.Params, len(params))
	for k, v := range params {
		p.Set(k, v)
	}
	missing, unknown := resolve.Diff(spec, p)

	report := ValidationReport{
		Valid:   len(missing) == 0,
		Missing: missing,
		Unknown: unknown,
	}
	for _, key := range missing {
		if example, ok := spec.Example[key]; ok {
			if report.Suggestions == nil {
				report.Suggestions = make(map[string]any, len(missing))
			}
			report.Suggestions[key] = example
		}
	}
	if !report.Valid {
		report.Message = "missing required parameter: " + missing[0]
	}
	return report
}

// ListTemplates returns the full template catalog.
func (d *Dispatcher) ListTemplates() map[string]map[string]template.Spec {
	return template.All()
}

// ListValidationTypes returns the accepted value_type and limit_type enums.
func (d *Dispatcher) ListValidationTypes() (valueTypes, limitTypes []string) {
	return template.ValidationTypes()
}
