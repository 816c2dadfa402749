package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"stride/internal/types"
)

// ErrStopDecoding may be returned by the event handler to end decoding
// cleanly before the underlying stream is exhausted (the accumulator returns
// it once a done record closes the turn).
var ErrStopDecoding = errors.New("stop decoding")

const maxLineSize = 1024 * 1024

// DecodeStream reads newline-delimited JSON event records from r and hands
// each decoded event to fn, in arrival order. A line that fails to parse is
// logged and skipped; it never aborts the rest of the stream. The context is
// checked before every read so cancellation takes effect between chunks.
func DecodeStream(ctx context.Context, r io.Reader, log *zap.Logger, fn func(types.StreamEvent) error) error {
	if log == nil {
		log = zap.NewNop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev types.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Warn("skipping malformed stream record", zap.Error(err), zap.Int("len", len(line)))
			continue
		}
		if ev.Type == "" {
			log.Warn("skipping stream record without type")
			continue
		}

		if err := fn(ev); err != nil {
			if errors.Is(err, ErrStopDecoding) {
				return nil
			}
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}
