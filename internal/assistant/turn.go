package assistant

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"stride/internal/types"
)

// TurnReason is the terminal state of a conversation turn.
type TurnReason string

const (
	TurnCompleted TurnReason = "completed"
	TurnAborted   TurnReason = "aborted"
	TurnErrored   TurnReason = "errored"
)

// Turn accumulates one assistant reply from the event stream: running text,
// the (wholesale-replaced) action proposals, arrival-ordered charts, and at
// most one pending context request.
type Turn struct {
	Index int

	text      strings.Builder
	started   bool
	preparing bool

	Actions    []types.ActionProposal
	Charts     []json.RawMessage
	ContextReq *types.ContextRequest

	Closed bool
	Reason TurnReason

	// OnText, if set, receives each content fragment as it arrives.
	// OnPreparing fires when the service signals actions are being prepared.
	// Both are UI affordances and do not gate correctness.
	OnText      func(fragment string)
	OnPreparing func()

	log *zap.Logger
}

// NewTurn creates an empty turn with the given index within the conversation.
func NewTurn(index int, log *zap.Logger) *Turn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Turn{Index: index, log: log}
}

// Text returns the accumulated assistant text so far.
func (t *Turn) Text() string {
	return t.text.String()
}

// Preparing reports whether an actions-in-preparation flag is currently set.
func (t *Turn) Preparing() bool {
	return t.preparing
}

// Started reports whether an assistant message shell exists for this turn.
// The shell is created by the first content event and exactly once.
func (t *Turn) Started() bool {
	return t.started
}

// Apply folds one stream event into the turn. Events arrive strictly in
// order; Apply returns ErrStopDecoding once a done record closes the turn.
func (t *Turn) Apply(ev types.StreamEvent) error {
	if t.Closed {
		return ErrStopDecoding
	}

	switch ev.Type {
	case types.EventContent:
		var fragment string
		if err := json.Unmarshal(ev.Data, &fragment); err != nil {
			t.log.Warn("content event with non-string data", zap.Error(err))
			return nil
		}
		if !t.started {
			t.started = true
		}
		t.text.WriteString(fragment)
		if t.OnText != nil {
			t.OnText(fragment)
		}

	case types.EventPreparingActions:
		t.preparing = true
		if t.OnPreparing != nil {
			t.OnPreparing()
		}

	case types.EventActions:
		var proposals []types.ActionProposal
		if err := json.Unmarshal(ev.Data, &proposals); err != nil {
			t.log.Warn("actions event with malformed data", zap.Error(err))
			return nil
		}
		// Wholesale replacement: the last actions event is the turn's final
		// proposal list.
		t.Actions = proposals
		t.preparing = false

	case types.EventChart:
		t.Charts = append(t.Charts, append(json.RawMessage(nil), ev.Data...))

	case types.EventMoreInfo:
		var req types.ContextRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			t.log.Warn("req_more_info event with malformed data", zap.Error(err))
			return nil
		}
		if t.ContextReq != nil {
			// Observed service behavior: at most one per turn. Tolerate
			// extras by keeping only the last.
			t.log.Debug("multiple req_more_info events in one turn, keeping last")
		}
		t.ContextReq = &req

	case types.EventDone:
		t.Close(TurnCompleted)
		return ErrStopDecoding

	default:
		t.log.Warn("unknown stream event kind", zap.String("type", string(ev.Type)))
	}

	return nil
}

// Close finalizes the turn with the given terminal reason. Closing is
// idempotent; the first reason wins.
func (t *Turn) Close(reason TurnReason) {
	if t.Closed {
		return
	}
	t.Closed = true
	t.Reason = reason
	t.preparing = false
}
