// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session runs test plans: one session executes the enabled items
// of one plan against one unit, sequentially, and records exactly one
// result per item.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/webpdtool/webpdtool/internal/result"
	"github.com/webpdtool/webpdtool/internal/session/lifecycle"
)

// ErrNotFound signals an unknown session id.
var ErrNotFound = errors.New("session not found")

// ErrNoEnabledItems rejects starting a session over a plan with nothing to
// execute.
var ErrNoEnabledItems = errors.New("plan has no enabled items")

// Session is the durable record of one test run.
type Session struct {
	ID         string          `json:"id"`
	PlanRef    string          `json:"plan_ref"`
	Project    string          `json:"project"`
	Station    string          `json:"station"`
	Serial     string          `json:"serial"`
	State      lifecycle.State `json:"state"`
	Outcome    result.Outcome  `json:"outcome,omitempty"`
	Error      string          `json:"error,omitempty"`
	ReportPath string          `json:"report_path,omitempty"`

	TotalItems     int `json:"total_items"`
	CompletedItems int `json:"completed_items"`
	CurrentItemNo  int `json:"current_item_no,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// EventPhase classifies a progress event.
type EventPhase string

const (
	PhaseItemStarted  EventPhase = "item_started"
	PhaseItemFinished EventPhase = "item_finished"
	PhaseSession      EventPhase = "session"
)

// ProgressEvent is one element of a session's progress stream.
type ProgressEvent struct {
	SessionID string          `json:"session_id"`
	Phase     EventPhase      `json:"phase"`
	ItemNo    int             `json:"item_no,omitempty"`
	ItemName  string          `json:"item_name,omitempty"`
	State     lifecycle.State `json:"state,omitempty"`
	Outcome   result.Outcome  `json:"outcome,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Repository persists sessions and their per-item results.
type Repository interface {
	PutSession(ctx context.Context, s Session) error
	UpdateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	// AppendResult is idempotent on (session id, item ordinal).
	AppendResult(ctx context.Context, sessionID string, rec result.Record) error
	ResultsFor(ctx context.Context, sessionID string) ([]result.Record, error)
}
