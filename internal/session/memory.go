package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is an in-process Store. Entries idle for longer than the TTL are dropped on access.
type Memory struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemory constructs an in-memory store. ttl <= 0 keeps sessions until cleared.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a copy of the user's session or ErrNotFound.
func (m *Memory) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(s) {
		m.mu.Lock()
		if cur, ok := m.sessions[userID]; ok && m.expired(cur) {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Save stores a copy of s and stamps UpdatedAt.
func (m *Memory) Save(_ context.Context, s *Session) error {
	if s == nil {
		return errors.New("session: nil session")
	}
	cp := clone(s)
	cp.UpdatedAt = m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = cp
	return nil
}

// Clear removes the user's session.
func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Len reports how many sessions are held, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close is a no-op; it lets Memory stand in wherever a backend closer is expected.
func (m *Memory) Close() error {
	return nil
}

func (m *Memory) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}
