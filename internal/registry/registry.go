// Package registry provides an injected registry of live stream controllers,
// keyed by user. It replaces the process-wide mutable map the product used
// for notification delivery: an explicit service with a documented lifecycle
// (Register, Unregister, Broadcast) is testable and survives multi-instance
// deployment, a bare global does not.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event kinds published over the registry.
const (
	StreamStarted  = "stream_started"
	StreamFinished = "stream_finished"
	StreamAborted  = "stream_aborted"
)

// Event describes a stream lifecycle change for one user.
type Event struct {
	UserID string
	Kind   string
	At     time.Time
}

// Controller receives stream lifecycle events. Notify must not block; slow
// consumers should buffer internally.
type Controller interface {
	Notify(Event)
}

// Registry maps users to their live stream controllers.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string][]Controller
	log         *zap.Logger
}

// New creates an empty registry.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{controllers: make(map[string][]Controller), log: log}
}

// Register attaches a controller for a user.
func (r *Registry) Register(userID string, c Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[userID] = append(r.controllers[userID], c)
	r.log.Debug("controller registered", zap.String("user", userID))
}

// Unregister detaches a controller for a user. Unknown pairs are a no-op.
func (r *Registry) Unregister(userID string, c Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.controllers[userID]
	for i, existing := range list {
		if existing == c {
			r.controllers[userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.controllers[userID]) == 0 {
		delete(r.controllers, userID)
	}
}

// Notify delivers an event to the controllers of one user.
func (r *Registry) Notify(ev Event) {
	r.mu.RLock()
	list := append([]Controller(nil), r.controllers[ev.UserID]...)
	r.mu.RUnlock()
	for _, c := range list {
		c.Notify(ev)
	}
}

// Broadcast delivers an event to every registered controller.
func (r *Registry) Broadcast(ev Event) {
	r.mu.RLock()
	var all []Controller
	for _, list := range r.controllers {
		all = append(all, list...)
	}
	r.mu.RUnlock()
	for _, c := range all {
		c.Notify(ev)
	}
}
