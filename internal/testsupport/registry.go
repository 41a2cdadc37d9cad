package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hoist/internal/registry"
)

// MemoryRegistry is an in-memory draft registry for queue tests. Failure
// injection fields may be set before use; the registry itself is safe for
// concurrent calls.
type MemoryRegistry struct {
	mu       sync.Mutex
	drafts   []registry.Draft
	known    map[string]map[string]struct{} // scope -> hashes
	nextID   int
	FailDup  error // returned by CheckDuplicateHashes when set
	FailSave error // returned by CreateDraft when set
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{known: make(map[string]map[string]struct{})}
}

// SeedHash marks a hash as already recorded for a scope.
func (m *MemoryRegistry) SeedHash(scopeID, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.known[scopeID] == nil {
		m.known[scopeID] = make(map[string]struct{})
	}
	m.known[scopeID][hash] = struct{}{}
}

func (m *MemoryRegistry) CheckDuplicateHashes(ctx context.Context, scopeID string, hashes []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDup != nil {
		return nil, m.FailDup
	}
	duplicates := make(map[string]struct{})
	for _, hash := range hashes {
		if _, ok := m.known[scopeID][hash]; ok {
			duplicates[hash] = struct{}{}
		}
	}
	return duplicates, nil
}

func (m *MemoryRegistry) CreateDraft(ctx context.Context, draft registry.Draft) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return "", m.FailSave
	}
	if draft.ScopeID == "" || draft.MediaURL == "" {
		return "", errors.New("draft missing scope or media url")
	}
	m.drafts = append(m.drafts, draft)
	if draft.ContentHash != "" {
		if m.known[draft.ScopeID] == nil {
			m.known[draft.ScopeID] = make(map[string]struct{})
		}
		m.known[draft.ScopeID][draft.ContentHash] = struct{}{}
	}
	m.nextID++
	return fmt.Sprintf("draft-%d", m.nextID), nil
}

func (m *MemoryRegistry) PublishDrafts(ctx context.Context, scopeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, draft := range m.drafts {
		if draft.ScopeID == scopeID {
			count++
		}
	}
	return count, nil
}

// Drafts returns a copy of the recorded drafts.
func (m *MemoryRegistry) Drafts() []registry.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]registry.Draft(nil), m.drafts...)
}
