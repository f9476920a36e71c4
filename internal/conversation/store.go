package conversation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when no live session exists for a user.
var ErrSessionNotFound = errors.New("conversation: session not found")

// Store abstracts booking-session storage so the engine can run against an
// in-memory map, Redis, or a test double. Idle expiry is enforced lazily:
// Get deletes and reports missing any session idle past the TTL.
type Store interface {
	Get(ctx context.Context, userID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID string) error
}

// MemoryStore keeps sessions in a mutex-guarded map. State loss on restart
// is acceptable for this design.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idleTTL  time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory store with the given idle TTL.
// A zero TTL disables expiry.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// Get returns the live session for userID, expiring it first if idle.
func (m *MemoryStore) Get(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(s) {
		delete(m.sessions, userID)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Put stores the session, refreshing its idle clock.
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	s.Touch()
	m.mu.Lock()
	m.sessions[s.UserID] = s
	m.mu.Unlock()
	return nil
}

// Delete removes the session if present.
func (m *MemoryStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

// SweepExpired drops every idle session and returns how many were removed.
// The map is otherwise unbounded.
func (m *MemoryStore) SweepExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) expired(s *Session) bool {
	return m.idleTTL > 0 && m.now().Sub(s.UpdatedAt) > m.idleTTL
}
