package assistant

import (
	"context"
	"io"
	"testing"

	"stride/internal/types"
)

// chunkReader returns its chunks one Read at a time, regardless of buffer
// size, to exercise records split across chunk boundaries.
type chunkReader struct {
	chunks []string
	pos    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	r.pos++
	return n, nil
}

func collect(t *testing.T, r io.Reader) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	err := DecodeStream(context.Background(), r, nil, func(ev types.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	return events
}

func TestDecodeStream_SplitRecords(t *testing.T) {
	r := &chunkReader{chunks: []string{
		`{"type":"content","data":"Hel`,
		`lo"}` + "\n" + `{"type":"cont`,
		`ent","data":" there"}` + "\n",
		`{"type":"done"}` + "\n",
	}}

	events := collect(t, r)
	if len(events) != 3 {
		t.Fatalf("decoded %d events, want 3", len(events))
	}
	if events[0].Type != types.EventContent || events[2].Type != types.EventDone {
		t.Errorf("unexpected event kinds: %v, %v", events[0].Type, events[2].Type)
	}
}

func TestDecodeStream_MalformedLineSkipped(t *testing.T) {
	r := &chunkReader{chunks: []string{
		`{"type":"content","data":"ok"}` + "\n",
		`{not json at all` + "\n",
		`{"type":"done"}` + "\n",
	}}

	events := collect(t, r)
	if len(events) != 2 {
		t.Fatalf("decoded %d events, want the malformed line skipped", len(events))
	}
}

func TestDecodeStream_HandlerStop(t *testing.T) {
	r := &chunkReader{chunks: []string{
		`{"type":"done"}` + "\n",
		`{"type":"content","data":"after done"}` + "\n",
	}}

	var seen int
	err := DecodeStream(context.Background(), r, nil, func(ev types.StreamEvent) error {
		seen++
		if ev.Type == types.EventDone {
			return ErrStopDecoding
		}
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if seen != 1 {
		t.Errorf("handler saw %d events after stop, want 1", seen)
	}
}

func TestDecodeStream_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &chunkReader{chunks: []string{
		`{"type":"content","data":"one"}` + "\n",
		`{"type":"content","data":"two"}` + "\n",
	}}

	var seen int
	err := DecodeStream(ctx, r, nil, func(ev types.StreamEvent) error {
		seen++
		cancel()
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("DecodeStream returned %v, want context.Canceled", err)
	}
	if seen != 1 {
		t.Errorf("handler saw %d events after cancellation, want 1", seen)
	}
}
