// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/session/lifecycle"
)

// Manager owns the running sessions of the process. Every session runs in
// its own goroutine; the manager tracks them for abort, progress
// subscription, and shutdown.
type Manager struct {
	plans  plan.Repository
	repo   Repository
	engine *Engine

	mu     sync.Mutex
	active map[string]*activeSession
}

type activeSession struct {
	cancel context.CancelFunc
	events *broadcaster
	done   chan struct{}
}

// NewManager wires the session manager.
func NewManager(plans plan.Repository, repo Repository, engine *Engine) *Manager {
	return &Manager{
		plans:  plans,
		repo:   repo,
		engine: engine,
		active: make(map[string]*activeSession),
	}
}

// StartSession creates and launches a session for the given plan reference
// and unit serial. The session outlives the caller's context.
func (m *Manager) StartSession(ctx context.Context, planRef, serial string) (Session, error) {
	if serial == "" {
		return Session{}, fmt.Errorf("serial must not be empty")
	}
	pl, err := m.plans.GetPlan(ctx, planRef)
	if err != nil {
		return Session{}, err
	}
	enabled := pl.EnabledItems()
	if len(enabled) == 0 {
		return Session{}, fmt.Errorf("plan %s: %w", pl.Ref(), ErrNoEnabledItems)
	}

	sess := Session{
		ID:         uuid.NewString(),
		PlanRef:    pl.Ref(),
		Project:    pl.Project,
		Station:    pl.Station,
		Serial:     serial,
		State:      lifecycle.Pending,
		TotalItems: len(enabled),
		CreatedAt:  time.Now(),
	}
	if err := m.repo.PutSession(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("persist session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	as := &activeSession{
		cancel: cancel,
		events: newBroadcaster(),
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	m.active[sess.ID] = as
	m.mu.Unlock()

	go func() {
		defer close(as.done)
		runCtx = log.ContextWithSessionID(runCtx, sess.ID)
		m.engine.run(runCtx, sess, pl, as.events)
		as.events.close()
		cancel()

		m.mu.Lock()
		delete(m.active, sess.ID)
		m.mu.Unlock()
	}()

	return sess, nil
}

// AbortSession requests cancellation of a running session. Aborting a
// session that already reached a terminal state is a no-op.
func (m *Manager) AbortSession(ctx context.Context, id string) error {
	m.mu.Lock()
	as, running := m.active[id]
	m.mu.Unlock()
	if running {
		as.cancel()
		return nil
	}
	// Not active: only legal if the session exists and is finished.
	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !sess.State.Terminal() {
		return fmt.Errorf("session %s is %s but not tracked", id, sess.State)
	}
	return nil
}

// GetSession returns the persisted view of a session.
func (m *Manager) GetSession(ctx context.Context, id string) (Session, error) {
	return m.repo.GetSession(ctx, id)
}

// ListSessions returns recent sessions, newest first.
func (m *Manager) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	return m.repo.ListSessions(ctx, limit)
}

// Results returns the recorded results of a session, in item order.
func (m *Manager) Results(ctx context.Context, id string) ([]result.Record, error) {
	return m.repo.ResultsFor(ctx, id)
}

// SubscribeProgress attaches to a session's progress stream. For finished
// sessions the returned channel is already closed.
func (m *Manager) SubscribeProgress(ctx context.Context, id string) (<-chan ProgressEvent, func(), error) {
	m.mu.Lock()
	as, running := m.active[id]
	m.mu.Unlock()
	if running {
		ch, cancel := as.events.subscribe()
		return ch, cancel, nil
	}
	if _, err := m.repo.GetSession(ctx, id); err != nil {
		return nil, nil, err
	}
	ch := make(chan ProgressEvent)
	close(ch)
	return ch, func() {}, nil
}

// Wait blocks until the session's goroutine has finished. Unknown or
// already-finished sessions return immediately.
func (m *Manager) Wait(id string) {
	m.mu.Lock()
	as, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		<-as.done
	}
}

// Shutdown aborts every running session and waits for them to finalize,
// bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	running := make([]*activeSession, 0, len(m.active))
	for _, as := range m.active {
		as.cancel()
		running = append(running, as)
	}
	m.mu.Unlock()

	for _, as := range running {
		select {
		case <-as.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
