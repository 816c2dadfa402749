package assistant

import (
	"encoding/json"
	"errors"
	"testing"

	"stride/internal/types"
)

func ev(t *testing.T, kind types.EventKind, data any) types.StreamEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	return types.StreamEvent{Type: kind, Data: raw}
}

func TestTurn_ContentAccumulates(t *testing.T) {
	turn := NewTurn(1, nil)

	var fragments []string
	turn.OnText = func(s string) { fragments = append(fragments, s) }

	for _, f := range []string{"Hello", ", ", "world"} {
		if err := turn.Apply(ev(t, types.EventContent, f)); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	if got := turn.Text(); got != "Hello, world" {
		t.Errorf("Text() = %q", got)
	}
	if len(fragments) != 3 {
		t.Errorf("OnText called %d times, want 3", len(fragments))
	}
	if !turn.Started() {
		t.Error("shell should exist after first content event")
	}
}

func TestTurn_ActionsReplaceWholesale(t *testing.T) {
	turn := NewTurn(1, nil)

	if err := turn.Apply(ev(t, types.EventPreparingActions, nil)); err != nil {
		t.Fatalf("Apply preparing: %v", err)
	}
	if !turn.Preparing() {
		t.Error("preparing flag should be set")
	}

	first := []types.ActionProposal{{Intent: "create", Method: "POST", Endpoint: "/api/goals"}}
	second := []types.ActionProposal{
		{Intent: "update", Method: "PUT", Endpoint: "/api/goals/[id]"},
		{Intent: "delete", Method: "DELETE", Endpoint: "/api/tasks/[id]"},
	}

	if err := turn.Apply(ev(t, types.EventActions, first)); err != nil {
		t.Fatalf("Apply actions: %v", err)
	}
	if err := turn.Apply(ev(t, types.EventActions, second)); err != nil {
		t.Fatalf("Apply actions: %v", err)
	}

	if len(turn.Actions) != 2 {
		t.Fatalf("Actions = %d entries, want the second list wholesale", len(turn.Actions))
	}
	if turn.Actions[0].Intent != "update" {
		t.Errorf("Actions[0].Intent = %q", turn.Actions[0].Intent)
	}
	if turn.Preparing() {
		t.Error("actions event should clear the preparing flag")
	}
}

func TestTurn_LastContextRequestWins(t *testing.T) {
	turn := NewTurn(1, nil)

	r1 := types.ContextRequest{Sections: []types.SectionRequest{{SectionID: "goals"}}}
	r2 := types.ContextRequest{Sections: []types.SectionRequest{{SectionID: "timeBlocks"}}}

	if err := turn.Apply(ev(t, types.EventMoreInfo, r1)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := turn.Apply(ev(t, types.EventMoreInfo, r2)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if turn.ContextReq == nil {
		t.Fatal("no context request recorded")
	}
	if got := turn.ContextReq.Sections[0].SectionID; got != "timeBlocks" {
		t.Errorf("retained section = %q, want the last request", got)
	}
}

func TestTurn_ChartsKeepArrivalOrder(t *testing.T) {
	turn := NewTurn(1, nil)

	for _, id := range []string{"c1", "c2", "c1"} {
		if err := turn.Apply(ev(t, types.EventChart, map[string]string{"chart": id})); err != nil {
			t.Fatalf("Apply chart: %v", err)
		}
	}

	// Duplicates by identity are not deduplicated.
	if len(turn.Charts) != 3 {
		t.Fatalf("Charts = %d entries, want 3", len(turn.Charts))
	}
}

func TestTurn_DoneClosesAndStopsDecoding(t *testing.T) {
	turn := NewTurn(1, nil)

	if err := turn.Apply(ev(t, types.EventContent, "hi")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	err := turn.Apply(types.StreamEvent{Type: types.EventDone})
	if !errors.Is(err, ErrStopDecoding) {
		t.Fatalf("done event returned %v, want ErrStopDecoding", err)
	}
	if !turn.Closed || turn.Reason != TurnCompleted {
		t.Errorf("turn not completed: closed=%v reason=%v", turn.Closed, turn.Reason)
	}

	// Events after close are ignored.
	if err := turn.Apply(ev(t, types.EventContent, "late")); !errors.Is(err, ErrStopDecoding) {
		t.Errorf("post-close Apply returned %v", err)
	}
	if turn.Text() != "hi" {
		t.Errorf("post-close content mutated the turn: %q", turn.Text())
	}
}

func TestTurn_CloseIdempotent(t *testing.T) {
	turn := NewTurn(1, nil)
	turn.Close(TurnAborted)
	turn.Close(TurnCompleted)
	if turn.Reason != TurnAborted {
		t.Errorf("Reason = %v, first close must win", turn.Reason)
	}
}
