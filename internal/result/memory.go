// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package result

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is the in-process result log used by a running session.
// Appends are idempotent with respect to item ordinal: recording the same
// item twice is a programming error and is rejected.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byName  map[string]int
	byNo    map[int]int
}

// NewMemoryStore returns an empty result log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]int),
		byNo:   make(map[int]int),
	}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byNo[rec.ItemNo]; dup {
		return fmt.Errorf("result for item %d already recorded", rec.ItemNo)
	}
	s.records = append(s.records, rec)
	s.byName[rec.ItemName] = len(s.records) - 1
	s.byNo[rec.ItemNo] = len(s.records) - 1
	return nil
}

func (s *MemoryStore) GetByName(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byName[name]
	if !ok {
		return Record{}, false
	}
	return s.records[idx], true
}

func (s *MemoryStore) GetByOrdinal(n int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byNo[n]
	if !ok {
		return Record{}, false
	}
	return s.records[idx], true
}

func (s *MemoryStore) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}
