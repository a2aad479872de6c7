package session

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Manager keeps sessions by ID
type Manager struct {
	runner     Runner
	embeddings EmbeddingSource

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions share the runner and store
func NewManager(runner Runner, embeddings EmbeddingSource) *Manager {
	return &Manager{
		runner:     runner,
		embeddings: embeddings,
		sessions:   make(map[string]*Session),
	}
}

// Create starts a new session
func (m *Manager) Create() *Session {
	s := New(m.runner, m.embeddings)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

// Get returns the session with the given ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete ends a session, reporting whether it existed
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// List returns session IDs, oldest first
func (m *Manager) List() []string {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

// Prune removes sessions idle for longer than maxIdle and returns how many went
func (m *Manager) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
