package snapshot

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"stride/internal/store"
)

// Refresher performs full snapshot reloads from the domain store. Concurrent
// refresh triggers (several share commands in one batch) collapse to a single
// fetch via singleflight.
type Refresher struct {
	store *store.Client
	snap  *Snapshot
	group singleflight.Group
	log   *zap.Logger
}

// NewRefresher creates a refresher bound to a snapshot mirror.
func NewRefresher(st *store.Client, snap *Snapshot, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{store: st, snap: snap, log: log}
}

// Refresh reloads the full snapshot and swaps it into the mirror.
func (r *Refresher) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("snapshot", func() (any, error) {
		data, err := r.store.FetchSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		r.snap.Replace(data)
		r.log.Debug("snapshot refreshed", zap.Int("sections", len(data)))
		return nil, nil
	})
	return err
}
