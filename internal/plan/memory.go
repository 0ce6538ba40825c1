// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package plan

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process plan repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[string]*Plan)}
}

func (r *MemoryRepository) GetPlan(_ context.Context, ref string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Items = append([]TestItem(nil), p.Items...)
	return &cp, nil
}

func (r *MemoryRepository) PutPlan(_ context.Context, p *Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.Items = append([]TestItem(nil), p.Items...)
	r.plans[p.Ref()] = &cp
	return nil
}
