package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Compile-time interface check.
var _ StoryStore = (*MemStore)(nil)

// MemStore is an in-memory [StoryStore] used when no Postgres DSN is
// configured, and by tests. Search is a naive case-insensitive substring
// match rather than real full-text search. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	stories []Story
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// SaveStory implements [StoryStore].
func (m *MemStore) SaveStory(_ context.Context, story Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories = append(m.stories, story)
	return nil
}

// ListStories implements [StoryStore].
func (m *MemStore) ListStories(_ context.Context, residentID string, limit int) ([]Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter(residentID, limit, func(Story) bool { return true }), nil
}

// SearchStories implements [StoryStore].
func (m *MemStore) SearchStories(_ context.Context, residentID, query string, limit int) ([]Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(query)
	return m.filter(residentID, limit, func(s Story) bool {
		return strings.Contains(strings.ToLower(s.Transcript), needle)
	}), nil
}

// filter returns matching stories newest first. Must be called with a lock held.
func (m *MemStore) filter(residentID string, limit int, keep func(Story) bool) []Story {
	var out []Story
	for _, s := range m.stories {
		if s.ResidentID == residentID && keep(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
