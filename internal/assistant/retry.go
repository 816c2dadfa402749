package assistant

import "strings"

// invalidToolSentinel is the service-signaled marker for a turn that died on
// malformed tool-call arguments.
const invalidToolSentinel = "invalid tool arguments"

// Fixed notices injected into the outbound message history.
const (
	// NoticeNoNewData is surfaced to the user when the retry chain stops
	// without new data. It is deliberately distinct from a generic error:
	// the request was understood but could not be satisfied.
	NoticeNoNewData = "No new data was available to answer your request."

	noticeDuplicateRequest = "System notice: the exact data sections you requested are already present in this conversation's context. Do not request them again; answer with what you have."

	noticeInvalidTool = "System notice: your previous reply contained invalid tool arguments. Do not issue further context requests; answer directly using the conversation so far."
)

// RetryState tracks the retry chain for one top-level user message. It is a
// plain value passed into and returned from Decide so the decision table is
// testable as a pure function.
type RetryState struct {
	RetryCount        int
	DuplicateWarnings int
	InvalidRetries    int
	LastFingerprint   string
}

// Limits holds the retry budgets. Data-bearing retries are more expensive
// (larger payloads, real loop risk) than bare capability requests, hence the
// asymmetry.
type Limits struct {
	Data       int
	Capability int
}

// DefaultLimits returns the standard budgets.
func DefaultLimits() Limits {
	return Limits{Data: 2, Capability: 4}
}

// TurnFacts is what the controller needs to know about a closed turn.
type TurnFacts struct {
	Text              string
	HasActions        bool
	HasContextRequest bool
	// Payload is the built context payload; nil when HasContextRequest is
	// false.
	Payload *Payload
}

// DecisionKind enumerates the controller's possible outcomes.
type DecisionKind int

const (
	// DecisionFinish ends the chain normally: no pending context request.
	DecisionFinish DecisionKind = iota
	// DecisionStop ends the chain with the no-new-data report.
	DecisionStop
	// DecisionRetry resubmits with the context block appended.
	DecisionRetry
	// DecisionWarnRetry resubmits with a duplicate-request warning instead
	// of a fresh context block.
	DecisionWarnRetry
	// DecisionCorrectiveRetry resubmits the same history with a notice
	// forbidding further context requests.
	DecisionCorrectiveRetry
)

// Decision is the controller's verdict for one closed turn.
type Decision struct {
	Kind   DecisionKind
	Notice string
}

// Decide evaluates the retry decision table for one closed turn and returns
// the verdict together with the updated state. Rows are evaluated strictly in
// order; the corrective-retry row bypasses the rest of the table.
func Decide(st RetryState, f TurnFacts, lim Limits) (Decision, RetryState) {
	if !f.HasContextRequest && !f.HasActions && st.InvalidRetries < 1 &&
		strings.Contains(strings.ToLower(f.Text), invalidToolSentinel) {
		st.InvalidRetries++
		return Decision{Kind: DecisionCorrectiveRetry, Notice: noticeInvalidTool}, st
	}

	if !f.HasContextRequest {
		return Decision{Kind: DecisionFinish}, st
	}

	p := f.Payload
	if !p.HasData && !p.HasToolRequest && !p.HasKnowledgeRequest {
		return Decision{Kind: DecisionStop, Notice: NoticeNoNewData}, st
	}

	budget := lim.Capability
	if p.HasData {
		budget = lim.Data
	}
	if st.RetryCount >= budget {
		return Decision{Kind: DecisionStop, Notice: NoticeNoNewData}, st
	}

	if p.HasData && p.Fingerprint == st.LastFingerprint {
		if st.DuplicateWarnings == 0 {
			st.DuplicateWarnings = 1
			st.RetryCount++
			return Decision{Kind: DecisionWarnRetry, Notice: noticeDuplicateRequest}, st
		}
		// The warning was not heeded; break the loop.
		return Decision{Kind: DecisionStop, Notice: NoticeNoNewData}, st
	}

	st.RetryCount++
	st.LastFingerprint = p.Fingerprint
	return Decision{Kind: DecisionRetry}, st
}
