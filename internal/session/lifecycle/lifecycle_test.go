package lifecycle

import "testing"

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for _, tr := range transitionsTable {
		if tr.From.Terminal() {
			t.Errorf("terminal state %s has outgoing edge to %s", tr.From, tr.To)
		}
		if !tr.From.Valid() || !tr.To.Valid() {
			t.Errorf("transition %s -> %s references unknown state", tr.From, tr.To)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []Transition{
		{Pending, Running},
		{Running, Finalizing},
		{Finalizing, Completed},
		{Finalizing, Aborted},
		{Running, Failed},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.From, tr.To) {
			t.Errorf("expected %s -> %s to be allowed", tr.From, tr.To)
		}
	}

	forbidden := []Transition{
		{Completed, Running},
		{Aborted, Pending},
		{Failed, Running},
		{Pending, Completed},
		{Running, Completed},
	}
	for _, tr := range forbidden {
		if CanTransition(tr.From, tr.To) {
			t.Errorf("expected %s -> %s to be forbidden", tr.From, tr.To)
		}
	}
}
