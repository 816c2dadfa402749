package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride/internal/types"
)

func TestKnown(t *testing.T) {
	for _, id := range []string{
		SectionGoals, SectionSharedGoals, SectionGroups, SectionTimeBlocks,
		SectionNotifications, SectionPreferences, SectionCalendarEvents,
	} {
		assert.True(t, Known(id), id)
	}
	assert.False(t, Known("passwords"))
	assert.False(t, Known(""))
}

func TestSnapshot_ApplyAdd(t *testing.T) {
	s := New(map[string]any{"goals": []any{}})

	err := s.Apply("goals", types.CacheUpdateInstruction{
		Action: types.CacheActionAdd,
		Data:   map[string]any{"id": "g1", "title": "Ship v2"},
	})
	require.NoError(t, err)

	goals := s.Section("goals").([]any)
	require.Len(t, goals, 1)
}

func TestSnapshot_ApplyUpdate(t *testing.T) {
	s := New(map[string]any{"goals": []any{
		map[string]any{"id": "g1", "title": "Old"},
		map[string]any{"id": "g2", "title": "Other"},
	}})

	err := s.Apply("goals", types.CacheUpdateInstruction{
		Action: types.CacheActionUpdate,
		Data:   map[string]any{"id": "g1", "title": "New"},
	})
	require.NoError(t, err)

	goals := s.Section("goals").([]any)
	assert.Equal(t, "New", goals[0].(map[string]any)["title"])
	assert.Equal(t, "Other", goals[1].(map[string]any)["title"])
}

func TestSnapshot_ApplyUpdateUnknownEntityConverges(t *testing.T) {
	s := New(map[string]any{"goals": []any{}})

	err := s.Apply("goals", types.CacheUpdateInstruction{
		Action: types.CacheActionUpdate,
		Data:   map[string]any{"id": "g7", "title": "Surprise"},
	})
	require.NoError(t, err)
	assert.Len(t, s.Section("goals").([]any), 1)
}

func TestSnapshot_ApplyRemove(t *testing.T) {
	s := New(map[string]any{"goals": []any{
		map[string]any{"id": "g1"},
		map[string]any{"id": "g2"},
	}})

	err := s.Apply("goals", types.CacheUpdateInstruction{
		Action: types.CacheActionRemove,
		Data:   map[string]any{"id": "g1"},
	})
	require.NoError(t, err)

	goals := s.Section("goals").([]any)
	require.Len(t, goals, 1)
	assert.Equal(t, "g2", goals[0].(map[string]any)["id"])
}

func TestSnapshot_ApplyRemoveLeavesEarlierReadsIntact(t *testing.T) {
	s := New(map[string]any{"goals": []any{
		map[string]any{"id": "g1"},
		map[string]any{"id": "g2"},
		map[string]any{"id": "g3"},
	}})

	before := s.Section("goals").([]any)

	err := s.Apply("goals", types.CacheUpdateInstruction{
		Action: types.CacheActionRemove,
		Data:   map[string]any{"id": "g1"},
	})
	require.NoError(t, err)

	// The slice handed out before the remove still holds all three entities.
	require.Len(t, before, 3)
	assert.Equal(t, "g1", before[0].(map[string]any)["id"])
	assert.Equal(t, "g2", before[1].(map[string]any)["id"])

	goals := s.Section("goals").([]any)
	require.Len(t, goals, 2)
	assert.Equal(t, "g2", goals[0].(map[string]any)["id"])
}

func TestSnapshot_ApplyRejectsBadInstruction(t *testing.T) {
	s := New(map[string]any{"goals": []any{}})

	assert.Error(t, s.Apply("goals", types.CacheUpdateInstruction{Action: "merge"}))
	assert.Error(t, s.Apply("goals", types.CacheUpdateInstruction{
		Action: types.CacheActionRemove,
		Data:   map[string]any{"title": "no id"},
	}))
	// Non-list sections cannot take entity updates.
	s2 := New(map[string]any{"preferences": map[string]any{"theme": "dark"}})
	assert.Error(t, s2.Apply("preferences", types.CacheUpdateInstruction{
		Action: types.CacheActionAdd,
		Data:   map[string]any{"id": "x"},
	}))
}

func TestSnapshot_Patch(t *testing.T) {
	s := New(map[string]any{"goals": []any{
		map[string]any{"id": "g1", "visibility": "private"},
	}})

	err := s.Patch("goals", "g1", map[string]any{"visibility": "shared"})
	require.NoError(t, err)

	goals := s.Section("goals").([]any)
	assert.Equal(t, "shared", goals[0].(map[string]any)["visibility"])

	assert.Error(t, s.Patch("goals", "missing", map[string]any{"visibility": "shared"}))
}

func TestSnapshot_Replace(t *testing.T) {
	s := New(map[string]any{"goals": []any{map[string]any{"id": "g1"}}})
	s.Replace(map[string]any{"goals": []any{}})
	assert.Len(t, s.Section("goals").([]any), 0)

	s.Replace(nil)
	assert.Nil(t, s.Section("goals"))
}
