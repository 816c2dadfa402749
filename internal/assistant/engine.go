// Package assistant implements the assistant-turn orchestration engine: it
// drives one user message through a streamed exchange with the assistant
// service, negotiates the service's follow-up context requests under a
// bounded retry budget, and hands proposed side effects to the action
// executor once the turn settles.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stride/internal/actions"
	"stride/internal/registry"
	"stride/internal/snapshot"
	"stride/internal/types"
)

// outboundWindow is the trailing message window sent with each turn request.
const outboundWindow = 10

// ErrTurnInFlight is returned when a second user-initiated turn arrives while
// one is still streaming. Only the engine's own resubmissions may continue a
// chain.
var ErrTurnInFlight = errors.New("assistant turn already in flight")

// TransportError wraps a network or HTTP failure other than cancellation.
// It is surfaced with a retry affordance and never consumes the
// context-request retry budget.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("assistant transport failure: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// History is the persistence hook for conversation messages. Implementations
// must tolerate being called between turns of a retry chain.
type History interface {
	Append(ctx context.Context, m types.Message) error
}

// EngineConfig wires an engine.
type EngineConfig struct {
	UserID           string
	DisplayName      string
	SystemPromptData string
	Limits           Limits
}

// Result is the settled outcome of one top-level user message, after any
// context-request negotiation.
type Result struct {
	Text     string
	Commands []actions.Command
	Charts   []json.RawMessage
	Reason   TurnReason
	// Notice carries the no-new-data report when the retry chain was
	// stopped or exhausted; empty otherwise.
	Notice string
}

// Engine owns one conversation. At most one request/stream cycle is in flight
// at a time; the per-message Aggregate and RetryState live only inside Send,
// so every new top-level message starts from a clean slate.
type Engine struct {
	client  *Client
	snap    *snapshot.Snapshot
	reg     *registry.Registry
	history History
	log     *zap.Logger
	cfg     EngineConfig

	mu        sync.Mutex
	inFlight  bool
	messages  []types.Message
	turnIndex int
}

// NewEngine creates an engine. Registry and history may be nil.
func NewEngine(client *Client, snap *snapshot.Snapshot, reg *registry.Registry, hist History, cfg EngineConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	return &Engine{
		client:  client,
		snap:    snap,
		reg:     reg,
		history: hist,
		cfg:     cfg,
		log:     log,
	}
}

// Preload seeds the in-memory conversation from persisted history.
func (e *Engine) Preload(msgs []types.Message) {
	e.mu.Lock()
	e.messages = append(e.messages, msgs...)
	e.mu.Unlock()
}

// Reset clears the conversation. Any retry chain owned by a previous message
// is already gone since its state lives inside Send.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.messages = nil
	e.turnIndex = 0
	e.mu.Unlock()
}

// Send drives one top-level user message to a settled result. onText, if not
// nil, receives streamed text fragments as they arrive. Cancelling ctx aborts
// the in-flight turn silently: no retry, no error surfaced.
func (e *Engine) Send(ctx context.Context, text string, onText func(string)) (*Result, error) {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	e.inFlight = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	// Per-message negotiation state, reset for every top-level message.
	agg := NewAggregate()
	st := RetryState{}

	e.appendMessage(ctx, types.Message{Role: types.RoleUser, Content: text})

	for {
		turn, err := e.runTurn(ctx, onText)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		if turn.Reason == TurnAborted {
			// User cancellation is silent and never auto-retries.
			return &Result{Reason: TurnAborted}, nil
		}

		facts := TurnFacts{
			Text:              turn.Text(),
			HasActions:        len(turn.Actions) > 0,
			HasContextRequest: turn.ContextReq != nil,
		}
		var payload *Payload
		if turn.ContextReq != nil {
			agg.Merge(*turn.ContextReq, e.log)
			payload, err = BuildPayload(agg, e.snap)
			if err != nil {
				return nil, fmt.Errorf("build context payload: %w", err)
			}
			facts.Payload = payload
		}

		decision, next := Decide(st, facts, e.cfg.Limits)
		st = next

		if decision.Kind == DecisionCorrectiveRetry {
			// Resubmit the same outbound history plus the corrective
			// notice; the failed reply itself is not recorded.
			e.log.Info("corrective retry after invalid tool arguments")
			e.appendMessage(ctx, types.Message{Role: types.RoleSystem, Content: decision.Notice})
			continue
		}

		if t := turn.Text(); t != "" {
			e.appendMessage(ctx, types.Message{Role: types.RoleAssistant, Content: t})
		}

		switch decision.Kind {
		case DecisionFinish, DecisionStop:
			if decision.Kind == DecisionStop {
				e.log.Info("context-request chain stopped",
					zap.Int("retries", st.RetryCount),
					zap.Int("duplicateWarnings", st.DuplicateWarnings))
			}
			return &Result{
				Text:     turn.Text(),
				Commands: actions.Normalize(turn.Index, turn.Actions),
				Charts:   turn.Charts,
				Reason:   TurnCompleted,
				Notice:   decision.Notice,
			}, nil

		case DecisionWarnRetry:
			e.log.Info("duplicate context request, warning once",
				zap.String("fingerprint", payload.Fingerprint))
			e.appendMessage(ctx, types.Message{Role: types.RoleSystem, Content: decision.Notice})

		case DecisionRetry:
			e.log.Info("resubmitting with injected context",
				zap.Int("retry", st.RetryCount),
				zap.Strings("sections", agg.SectionIDs()),
				zap.Bool("hasData", payload.HasData))
			e.appendMessage(ctx, types.Message{Role: types.RoleSystem, Content: payload.Text})
		}
	}
}

// runTurn performs one request/stream cycle and returns the closed turn.
func (e *Engine) runTurn(ctx context.Context, onText func(string)) (*Turn, error) {
	e.mu.Lock()
	e.turnIndex++
	idx := e.turnIndex
	msgs := trailingWindow(e.messages, outboundWindow)
	e.mu.Unlock()

	turn := NewTurn(idx, e.log)
	turn.OnText = onText

	e.notify(registry.StreamStarted)

	stream, err := e.client.StreamTurn(ctx, ChatRequest{
		Messages:         msgs,
		SystemPromptData: e.cfg.SystemPromptData,
		DisplayName:      e.cfg.DisplayName,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			turn.Close(TurnAborted)
			e.notify(registry.StreamAborted)
			return turn, nil
		}
		e.notify(registry.StreamAborted)
		return nil, err
	}
	defer stream.Close()

	if err := DecodeStream(ctx, stream, e.log, turn.Apply); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			turn.Close(TurnAborted)
			e.notify(registry.StreamAborted)
			return turn, nil
		}
		turn.Close(TurnErrored)
		e.notify(registry.StreamAborted)
		return nil, err
	}

	// End of stream with no done record still closes the turn.
	turn.Close(TurnCompleted)
	e.notify(registry.StreamFinished)
	return turn, nil
}

func (e *Engine) appendMessage(ctx context.Context, m types.Message) {
	e.mu.Lock()
	e.messages = append(e.messages, m)
	e.mu.Unlock()

	if e.history != nil {
		if err := e.history.Append(ctx, m); err != nil {
			e.log.Warn("history append failed", zap.Error(err))
		}
	}
}

func (e *Engine) notify(kind string) {
	if e.reg == nil {
		return
	}
	e.reg.Notify(registry.Event{UserID: e.cfg.UserID, Kind: kind, At: time.Now()})
}

func trailingWindow(msgs []types.Message, n int) []types.Message {
	if len(msgs) <= n {
		return append([]types.Message(nil), msgs...)
	}
	return append([]types.Message(nil), msgs[len(msgs)-n:]...)
}
