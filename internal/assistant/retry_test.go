package assistant

import "testing"

func dataPayload(fp string) *Payload {
	return &Payload{Fingerprint: fp, HasData: true}
}

func TestDecide_FinishWithoutContextRequest(t *testing.T) {
	d, st := Decide(RetryState{}, TurnFacts{Text: "All done."}, DefaultLimits())
	if d.Kind != DecisionFinish {
		t.Fatalf("Kind = %v, want DecisionFinish", d.Kind)
	}
	if st != (RetryState{}) {
		t.Errorf("state mutated on finish: %+v", st)
	}
}

func TestDecide_CorrectiveRetryOnce(t *testing.T) {
	facts := TurnFacts{Text: "Something went wrong: invalid tool arguments were provided."}

	d, st := Decide(RetryState{}, facts, DefaultLimits())
	if d.Kind != DecisionCorrectiveRetry {
		t.Fatalf("first sentinel turn: Kind = %v, want DecisionCorrectiveRetry", d.Kind)
	}
	if st.InvalidRetries != 1 {
		t.Errorf("InvalidRetries = %d, want 1", st.InvalidRetries)
	}

	// Second occurrence is surfaced, not retried.
	d, _ = Decide(st, facts, DefaultLimits())
	if d.Kind != DecisionFinish {
		t.Errorf("second sentinel turn: Kind = %v, want DecisionFinish", d.Kind)
	}
}

func TestDecide_CorrectiveRetryRequiresQuietTurn(t *testing.T) {
	// Sentinel text with actions proposed is a normal finish.
	d, _ := Decide(RetryState{}, TurnFacts{
		Text:       "invalid tool arguments",
		HasActions: true,
	}, DefaultLimits())
	if d.Kind != DecisionFinish {
		t.Errorf("Kind = %v, want DecisionFinish when actions are present", d.Kind)
	}

	// Sentinel text with a pending context request goes through the table.
	d, _ = Decide(RetryState{}, TurnFacts{
		Text:              "invalid tool arguments",
		HasContextRequest: true,
		Payload:           dataPayload("fp-a"),
	}, DefaultLimits())
	if d.Kind != DecisionRetry {
		t.Errorf("Kind = %v, want DecisionRetry when a context request is pending", d.Kind)
	}
}

func TestDecide_NothingRequestedNothingAvailable(t *testing.T) {
	d, _ := Decide(RetryState{}, TurnFacts{
		HasContextRequest: true,
		Payload:           &Payload{},
	}, DefaultLimits())
	if d.Kind != DecisionStop {
		t.Fatalf("Kind = %v, want DecisionStop", d.Kind)
	}
	if d.Notice != NoticeNoNewData {
		t.Errorf("Notice = %q", d.Notice)
	}
}

func TestDecide_DataBudgetTermination(t *testing.T) {
	st := RetryState{}
	fingerprints := []string{"fp-a", "fp-b", "fp-c", "fp-d"}

	retries := 0
	for _, fp := range fingerprints {
		d, next := Decide(st, TurnFacts{
			HasContextRequest: true,
			Payload:           dataPayload(fp),
		}, DefaultLimits())
		st = next
		if d.Kind == DecisionStop {
			break
		}
		if d.Kind != DecisionRetry {
			t.Fatalf("unexpected decision %v", d.Kind)
		}
		retries++
	}

	if retries != 2 {
		t.Errorf("data-bearing chain allowed %d retries, want 2", retries)
	}
}

func TestDecide_CapabilityBudgetTermination(t *testing.T) {
	st := RetryState{}
	retries := 0
	for i := 0; i < 10; i++ {
		d, next := Decide(st, TurnFacts{
			HasContextRequest: true,
			Payload:           &Payload{HasToolRequest: true},
		}, DefaultLimits())
		st = next
		if d.Kind == DecisionStop {
			break
		}
		retries++
	}
	if retries != 4 {
		t.Errorf("capability-only chain allowed %d retries, want 4", retries)
	}
}

func TestDecide_DuplicateWarnThenStop(t *testing.T) {
	// Generous budget so the duplicate rows are reached, not the budget row.
	lim := Limits{Data: 10, Capability: 10}
	facts := TurnFacts{HasContextRequest: true, Payload: dataPayload("fp-a")}

	d, st := Decide(RetryState{}, facts, lim)
	if d.Kind != DecisionRetry {
		t.Fatalf("first request: Kind = %v, want DecisionRetry", d.Kind)
	}

	d, st = Decide(st, facts, lim)
	if d.Kind != DecisionWarnRetry {
		t.Fatalf("repeated fingerprint: Kind = %v, want DecisionWarnRetry", d.Kind)
	}
	if st.DuplicateWarnings != 1 {
		t.Errorf("DuplicateWarnings = %d, want 1", st.DuplicateWarnings)
	}
	if st.RetryCount != 2 {
		t.Errorf("warn should count as a retry, RetryCount = %d", st.RetryCount)
	}

	d, _ = Decide(st, facts, lim)
	if d.Kind != DecisionStop {
		t.Fatalf("unheeded warning: Kind = %v, want DecisionStop", d.Kind)
	}
}

func TestDecide_NewFingerprintAfterWarningRetries(t *testing.T) {
	lim := Limits{Data: 10, Capability: 10}

	_, st := Decide(RetryState{}, TurnFacts{HasContextRequest: true, Payload: dataPayload("fp-a")}, lim)
	_, st = Decide(st, TurnFacts{HasContextRequest: true, Payload: dataPayload("fp-a")}, lim)

	d, st := Decide(st, TurnFacts{HasContextRequest: true, Payload: dataPayload("fp-b")}, lim)
	if d.Kind != DecisionRetry {
		t.Fatalf("fresh fingerprint after warning: Kind = %v, want DecisionRetry", d.Kind)
	}
	if st.LastFingerprint != "fp-b" {
		t.Errorf("LastFingerprint = %q, want fp-b", st.LastFingerprint)
	}
}
