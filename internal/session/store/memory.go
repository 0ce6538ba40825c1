// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists sessions and their results. Two backends exist:
// an in-process map for tests and ephemeral stations, and SQLite for
// everything else.
package store

import (
	"context"
	"sync"

	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/session"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	order    []string
	results  map[string][]result.Record
	seen     map[string]map[int]bool
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]session.Session),
		results:  make(map[string][]result.Record),
		seen:     make(map[string]map[int]bool),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) PutSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		s.order = append(s.order, sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return session.ErrNotFound
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.Session, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendResult(_ context.Context, sessionID string, rec result.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return session.ErrNotFound
	}
	if s.seen[sessionID] == nil {
		s.seen[sessionID] = make(map[int]bool)
	}
	if s.seen[sessionID][rec.ItemNo] {
		return nil // idempotent on (session, ordinal)
	}
	s.seen[sessionID][rec.ItemNo] = true
	s.results[sessionID] = append(s.results[sessionID], rec)
	return nil
}

func (s *MemoryStore) ResultsFor(_ context.Context, sessionID string) ([]result.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, session.ErrNotFound
	}
	return append([]result.Record(nil), s.results[sessionID]...), nil
}
