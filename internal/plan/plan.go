// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package plan defines test plans and their validation rules.
package plan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound signals an unknown plan reference.
var ErrNotFound = errors.New("plan not found")

// Plan is an ordered set of test items scoped to a (project, station, name).
type Plan struct {
	Project string     `json:"project"`
	Station string     `json:"station"`
	Name    string     `json:"name"`
	Items   []TestItem `json:"items"`
}

// Ref returns the lookup reference of the plan.
func (p *Plan) Ref() string {
	return p.Project + "/" + p.Station + "/" + p.Name
}

// Validate enforces the plan-level invariants: item_no strictly increasing
// over execution order, item_name unique, use_result never a forward or
// self reference.
func (p *Plan) Validate() error {
	if len(p.Items) == 0 {
		return fmt.Errorf("plan %s: no items", p.Ref())
	}
	names := make(map[string]int, len(p.Items))
	ordinals := make(map[int]bool, len(p.Items))
	lastNo := 0
	for i, it := range p.Items {
		if it.ItemName == "" {
			return fmt.Errorf("plan %s: item %d has empty name", p.Ref(), it.ItemNo)
		}
		if prev, dup := names[it.ItemName]; dup {
			return fmt.Errorf("plan %s: duplicate item name %q (items %d and %d)", p.Ref(), it.ItemName, prev, it.ItemNo)
		}
		names[it.ItemName] = it.ItemNo
		if i > 0 && it.ItemNo <= lastNo {
			return fmt.Errorf("plan %s: item_no must strictly increase, got %d after %d", p.Ref(), it.ItemNo, lastNo)
		}
		lastNo = it.ItemNo
		ordinals[it.ItemNo] = true
	}
	// use_result may name an item or an ordinal; both must point backwards.
	seenNames := make(map[string]bool, len(p.Items))
	seenOrdinals := make(map[int]bool, len(p.Items))
	for _, it := range p.Items {
		if it.UseResult != "" {
			ok := seenNames[it.UseResult]
			if !ok {
				if n, err := strconv.Atoi(it.UseResult); err == nil {
					ok = seenOrdinals[n]
				}
			}
			if !ok {
				return fmt.Errorf("plan %s: item %q use_result %q does not reference an earlier item", p.Ref(), it.ItemName, it.UseResult)
			}
		}
		seenNames[it.ItemName] = true
		seenOrdinals[it.ItemNo] = true
	}
	return nil
}

// EnabledItems returns the items to execute, in plan order.
func (p *Plan) EnabledItems() []TestItem {
	out := make([]TestItem, 0, len(p.Items))
	for _, it := range p.Items {
		if it.Enabled {
			out = append(out, it)
		}
	}
	return out
}

// ItemByNo returns the item with the given ordinal, if present.
func (p *Plan) ItemByNo(no int) (TestItem, bool) {
	for _, it := range p.Items {
		if it.ItemNo == no {
			return it, true
		}
	}
	return TestItem{}, false
}

// Repository provides read access to stored test plans.
type Repository interface {
	GetPlan(ctx context.Context, ref string) (*Plan, error)
	PutPlan(ctx context.Context, p *Plan) error
}
