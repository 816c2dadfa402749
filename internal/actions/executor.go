package actions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stride/internal/snapshot"
	"stride/internal/store"
)

// CommandError reports the failure of one command, carrying the attempted
// label and the underlying status when the store answered at all.
type CommandError struct {
	Key    string
	Label  string
	Status int
	Err    error
}

func (e *CommandError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Label, e.Status, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Label, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// BatchResult reports a sequential batch run: how many commands completed
// before the first failure, and the failure itself if any.
type BatchResult struct {
	Executed int
	Failed   *CommandError
}

// Executor runs commands against the domain store and keeps the local
// snapshot mirror consistent with their effects.
type Executor struct {
	store     *store.Client
	snap      *snapshot.Snapshot
	refresher *snapshot.Refresher
	log       *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(st *store.Client, snap *snapshot.Snapshot, refresher *snapshot.Refresher, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{store: st, snap: snap, refresher: refresher, log: log}
}

// Execute runs one command. On success, the store's cache-update instruction
// (if any) is applied to the snapshot mirror; share/unshare commands without
// one fall back to a local visibility patch, and always trigger a full
// snapshot refresh since sharing affects data other users will fetch.
// Failures are reported as *CommandError; already-applied effects are never
// rolled back.
func (e *Executor) Execute(ctx context.Context, cmd Command) error {
	e.log.Info("executing command",
		zap.String("key", cmd.Key),
		zap.String("label", cmd.Label),
		zap.String("method", cmd.Method),
		zap.String("endpoint", cmd.Endpoint))

	resp, err := e.store.Do(ctx, cmd.Method, cmd.Endpoint, cmd.Body)
	if err != nil {
		cmdErr := &CommandError{Key: cmd.Key, Label: cmd.Label, Err: err}
		var statusErr *store.StatusError
		if errors.As(err, &statusErr) {
			cmdErr.Status = statusErr.Status
		}
		return cmdErr
	}

	if resp.CacheUpdate != nil {
		if err := e.snap.Apply(cmd.Collection, *resp.CacheUpdate); err != nil {
			// The store-side mutation succeeded; a mirror glitch is logged,
			// not surfaced as a command failure.
			e.log.Warn("cache update not applied", zap.String("key", cmd.Key), zap.Error(err))
		}
	} else if cmd.IsShare() {
		e.patchShareLocally(cmd, resp.Body)
	}

	if cmd.IsShare() {
		if err := e.refresher.Refresh(ctx); err != nil {
			e.log.Warn("snapshot refresh after share failed", zap.Error(err))
		}
	}
	return nil
}

// ExecuteAll runs commands sequentially in proposal order and stops at the
// first failure. Commands already executed keep their effects; later commands
// may depend on earlier ones, so out-of-order or continued execution is not
// an option.
func (e *Executor) ExecuteAll(ctx context.Context, cmds []Command) BatchResult {
	for i, cmd := range cmds {
		if err := e.Execute(ctx, cmd); err != nil {
			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				cmdErr = &CommandError{Key: cmd.Key, Label: cmd.Label, Err: err}
			}
			e.log.Warn("batch halted",
				zap.Int("executed", i),
				zap.String("failedKey", cmd.Key),
				zap.Error(err))
			return BatchResult{Executed: i, Failed: cmdErr}
		}
	}
	return BatchResult{Executed: len(cmds)}
}

// patchShareLocally mirrors a share/unshare response into the snapshot when
// the store sent no cache-update instruction.
func (e *Executor) patchShareLocally(cmd Command, body map[string]any) {
	id, ok := cmd.Body["id"]
	if !ok {
		if body != nil {
			id, ok = body["id"]
		}
		if !ok {
			return
		}
	}
	fields := make(map[string]any)
	if v, ok := body["visibility"]; ok {
		fields["visibility"] = v
	}
	if v, ok := body["shared_groups"]; ok {
		fields["shared_groups"] = v
	}
	if len(fields) == 0 {
		return
	}
	if err := e.snap.Patch(cmd.Collection, id, fields); err != nil {
		e.log.Debug("share fallback patch skipped", zap.Error(err))
	}
}
