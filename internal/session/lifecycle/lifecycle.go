// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package lifecycle defines the session state machine. States only move
// forward; terminal states never transition again.
package lifecycle

// State is one phase of a test session.
type State string

const (
	Pending    State = "PENDING"
	Running    State = "RUNNING"
	Finalizing State = "FINALIZING"
	Completed  State = "COMPLETED"
	Aborted    State = "ABORTED"
	Failed     State = "FAILED"
)

// Transition is a single allowed edge in the state machine.
type Transition struct {
	From State
	To   State
}

var transitionsTable = []Transition{
	{From: Pending, To: Running},
	{From: Running, To: Finalizing},
	{From: Finalizing, To: Completed},
	{From: Finalizing, To: Aborted},

	// Failure can strike in any live phase.
	{From: Pending, To: Failed},
	{From: Running, To: Failed},
	{From: Finalizing, To: Failed},
}

// CanTransition reports whether the edge from->to is in the table.
func CanTransition(from, to State) bool {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state never transitions again.
func (s State) Terminal() bool {
	return s == Completed || s == Aborted || s == Failed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Pending, Running, Finalizing, Completed, Aborted, Failed:
		return true
	}
	return false
}
