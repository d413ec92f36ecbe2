package core

import (
	"fmt"
	"sort"
	"sync"
)

// SessionStore is the registry of import sessions shared by the driver and
// the control surface.
type SessionStore interface {
	// Create inserts a new session. Fails with ErrSessionExists on id reuse.
	Create(s *Session) error

	// Get returns a snapshot of the session. Mutating it has no effect on the store.
	Get(id string) (Session, bool)

	// Update applies fn to the stored session atomically and returns the
	// resulting snapshot. Unknown ids are a no-op reporting false.
	Update(id string, fn func(*Session)) (Session, bool)

	// Delete removes a session. Reports whether it existed.
	Delete(id string) bool

	// List returns snapshots of all sessions, most recent first.
	List() []Session
}

// MemoryStore keeps sessions in process memory. Everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (m *MemoryStore) Create(s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("create session: missing id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("create session %s: %w", s.ID, ErrSessionExists)
	}

	stored := s.clone()
	m.sessions[s.ID] = &stored
	return nil
}

func (m *MemoryStore) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

func (m *MemoryStore) Update(id string, fn func(*Session)) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}

	// Identity, input and settings are write-once.
	id, records, settings, startedAt := s.ID, s.Records, s.Settings, s.StartedAt
	total := s.Stats.TotalRows

	fn(s)

	s.ID, s.Records, s.Settings, s.StartedAt = id, records, settings, startedAt
	s.Stats.TotalRows = total

	return s.clone(), true
}

func (m *MemoryStore) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

func (m *MemoryStore) List() []Session {
	m.mu.RLock()
	result := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s.clone())
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}
