// Package types holds the shared wire and domain types used across the
// assistant engine, the action executor, and the domain-store client.
package types

import "encoding/json"

// Message roles used in the outbound conversation window.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry in the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EventKind discriminates the records of the assistant event stream.
type EventKind string

const (
	EventContent          EventKind = "content"
	EventPreparingActions EventKind = "preparing_actions"
	EventActions          EventKind = "actions"
	EventChart            EventKind = "chart"
	EventMoreInfo         EventKind = "req_more_info"
	EventDone             EventKind = "done"
)

// StreamEvent is one newline-delimited record of the assistant response
// stream. Data is kind-specific and decoded by the consumer.
type StreamEvent struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ActionProposal is a raw side-effect proposal as emitted by the assistant
// service. It is normalized into an executable command before anything
// touches the domain store.
type ActionProposal struct {
	Intent   string         `json:"intent"`
	Method   string         `json:"method"`
	Endpoint string         `json:"endpoint"`
	Payload  map[string]any `json:"payload"`
}

// SectionRequest names one domain-snapshot section the service wants,
// optionally with a free-text reason.
type SectionRequest struct {
	SectionID string `json:"sectionId"`
	Reason    string `json:"reason,omitempty"`
}

// ContextRequest is the structured "I need more context" signal carried by a
// req_more_info event.
type ContextRequest struct {
	Sections           []SectionRequest `json:"sections"`
	DomainKnowledgeIDs []string         `json:"domainKnowledgeIds"`
	ToolIDs            []string         `json:"toolIds"`
}

// Empty reports whether the request carries nothing at all.
func (r ContextRequest) Empty() bool {
	return len(r.Sections) == 0 && len(r.DomainKnowledgeIDs) == 0 && len(r.ToolIDs) == 0
}

// Cache-update actions returned by the domain store after a mutation.
const (
	CacheActionAdd    = "add"
	CacheActionUpdate = "update"
	CacheActionRemove = "remove"
)

// CacheUpdateInstruction is the declarative patch the domain store may attach
// to a mutating response (_cacheUpdate). The engine applies it to the local
// snapshot mirror but never computes one itself.
type CacheUpdateInstruction struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}
