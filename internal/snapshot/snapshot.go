// Package snapshot maintains the local read-only mirror of the user's domain
// data (goals, shares, groups, schedule, ...). The assistant engine reads it
// to answer context requests; the action executor patches it with the
// declarative cache-update instructions returned by the domain store.
package snapshot

import (
	"fmt"
	"sync"

	"stride/internal/types"
)

// Known section ids. This set is closed on purpose: a context request naming
// anything outside it is dropped at aggregation time, so the service can
// never pull arbitrary data into its context window.
const (
	SectionGoals          = "goals"
	SectionSharedGoals    = "sharedGoals"
	SectionGroups         = "groups"
	SectionTimeBlocks     = "timeBlocks"
	SectionNotifications  = "notifications"
	SectionPreferences    = "preferences"
	SectionCalendarEvents = "calendarEvents"
)

var knownSections = map[string]bool{
	SectionGoals:          true,
	SectionSharedGoals:    true,
	SectionGroups:         true,
	SectionTimeBlocks:     true,
	SectionNotifications:  true,
	SectionPreferences:    true,
	SectionCalendarEvents: true,
}

// Known reports whether id belongs to the closed section set.
func Known(id string) bool {
	return knownSections[id]
}

// Snapshot is the in-memory mirror, keyed by section id. Section values are
// whatever JSON the store returned for that section (usually a list of
// entity objects, sometimes a single object such as preferences).
type Snapshot struct {
	mu   sync.RWMutex
	data map[string]any
}

// New creates a snapshot over the given section data. A nil map is valid and
// yields an empty snapshot.
func New(data map[string]any) *Snapshot {
	if data == nil {
		data = make(map[string]any)
	}
	return &Snapshot{data: data}
}

// Section returns the raw value for a section id, or nil if absent.
func (s *Snapshot) Section(id string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[id]
}

// Replace swaps in a full new data set, used after a store-side refresh.
func (s *Snapshot) Replace(data map[string]any) {
	if data == nil {
		data = make(map[string]any)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

// Apply executes one cache-update instruction against a section. The section
// must hold a list of entity objects carrying an "id" field; anything else is
// an error so a bad instruction surfaces instead of silently corrupting the
// mirror.
func (s *Snapshot) Apply(section string, upd types.CacheUpdateInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch upd.Action {
	case types.CacheActionAdd:
		list, err := s.entityList(section)
		if err != nil {
			return err
		}
		s.data[section] = append(list, upd.Data)
		return nil

	case types.CacheActionUpdate:
		list, err := s.entityList(section)
		if err != nil {
			return err
		}
		id, ok := upd.Data["id"]
		if !ok {
			return fmt.Errorf("cache update for %s has no id", section)
		}
		for i, ent := range list {
			m, ok := ent.(map[string]any)
			if !ok {
				continue
			}
			if m["id"] == id {
				list[i] = upd.Data
				return nil
			}
		}
		// Entity not mirrored yet; treat as add so the mirror converges.
		s.data[section] = append(list, upd.Data)
		return nil

	case types.CacheActionRemove:
		list, err := s.entityList(section)
		if err != nil {
			return err
		}
		id, ok := upd.Data["id"]
		if !ok {
			return fmt.Errorf("cache remove for %s has no id", section)
		}
		// Fresh slice: earlier Section callers may still alias the old
		// backing array.
		out := make([]any, 0, len(list))
		for _, ent := range list {
			if m, ok := ent.(map[string]any); ok && m["id"] == id {
				continue
			}
			out = append(out, ent)
		}
		s.data[section] = out
		return nil

	default:
		return fmt.Errorf("unknown cache action %q", upd.Action)
	}
}

// Patch merges fields into the entity with the given id in a section. Used as
// the share/unshare fallback when the store returned no cache-update
// instruction.
func (s *Snapshot) Patch(section string, id any, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.entityList(section)
	if err != nil {
		return err
	}
	for _, ent := range list {
		m, ok := ent.(map[string]any)
		if !ok {
			continue
		}
		if m["id"] == id {
			for k, v := range fields {
				m[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("entity %v not found in %s", id, section)
}

func (s *Snapshot) entityList(section string) ([]any, error) {
	v, ok := s.data[section]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("section %s does not hold an entity list", section)
	}
	return list, nil
}
