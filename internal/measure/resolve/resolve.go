// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package resolve

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/measure/template"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
)

// ErrUseResultNotFound means a use_result reference named no prior result,
// neither by item name nor by ordinal.
var ErrUseResultNotFound = errors.New("use_result reference not found")

// MissingParamsError reports required template parameters absent from the
// resolved map, in template declaration order.
type MissingParamsError struct {
	Missing []string
}

func (e *MissingParamsError) Error() string {
	return "missing required parameter: " + e.Missing[0]
}

// PriorResults is the slice of the result store the resolver needs for
// use_result substitution. A per-session result.Store satisfies it.
type PriorResults interface {
	GetByName(name string) (result.Record, bool)
	GetByOrdinal(n int) (result.Record, bool)
}

// ambient keys come from item columns rather than the parameter bag and are
// never flagged as unknown.
var ambientKeys = map[string]struct{}{
	"timeout":    {},
	"wait_msec":  {},
	"use_result": {},
}

// Resolve builds the final parameter map for one item. Direct item columns
// seed the map, the JSON parameter bag overlays it, and any use_result
// reference is substituted with the referenced item's measured value. The
// returned map satisfies the item's template or the error says why not.
func Resolve(item plan.TestItem, prior PriorResults) (Params, error) {
	p := make(Params, len(item.Parameters)+3)

	if item.TimeoutMS > 0 {
		p["timeout"] = item.TimeoutMS
	}
	if item.WaitMSec > 0 {
		p["wait_msec"] = item.WaitMSec
	}
	if item.UseResult != "" {
		p["use_result"] = item.UseResult
	}

	for k, v := range item.Parameters {
		p.Set(k, v)
	}

	if ref, ok := p.String("use_result"); ok && ref != "" {
		val, err := substitute(ref, prior)
		if err != nil {
			return nil, err
		}
		p["use_result"] = val
	}

	spec, known := template.Lookup(item.TestType, item.SwitchMode)
	if !known {
		return p, nil
	}

	missing, unknown := Diff(spec, p)
	if len(unknown) > 0 {
		log.WithComponent("resolve").Debug().
			Str("item", item.ItemName).
			Strs("params", unknown).
			Msg("parameters not in template, passing through")
	}
	if len(missing) > 0 {
		return nil, &MissingParamsError{Missing: missing}
	}
	return p, nil
}

// Diff compares a resolved map against a template spec and returns the
// required keys that are absent and the present keys the template does not
// mention. Both sides are compared in canonical form.
func Diff(spec template.Spec, p Params) (missing, unknown []string) {
	declared := make(map[string]struct{}, len(spec.Required)+len(spec.Optional))
	for _, k := range spec.Required {
		ck := CanonKey(k)
		declared[ck] = struct{}{}
		if !p.Has(ck) {
			missing = append(missing, k)
		}
	}
	for _, k := range spec.Optional {
		declared[CanonKey(k)] = struct{}{}
	}
	for k := range p {
		if _, ok := declared[k]; ok {
			continue
		}
		if _, ok := ambientKeys[k]; ok {
			continue
		}
		unknown = append(unknown, k)
	}
	return missing, unknown
}

// substitute resolves a use_result reference against prior results, by item
// name first and by ordinal as a fallback. Whole-number float renderings
// lose their trailing ".0" so substituted values splice cleanly into
// commands.
func substitute(ref string, prior PriorResults) (string, error) {
	if prior == nil {
		return "", fmt.Errorf("%w: %q", ErrUseResultNotFound, ref)
	}
	rec, ok := prior.GetByName(ref)
	if !ok {
		if n, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
			rec, ok = prior.GetByOrdinal(n)
		}
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUseResultNotFound, ref)
	}
	val := rec.ValueString()
	val = strings.TrimSuffix(val, ".0")
	return val, nil
}
