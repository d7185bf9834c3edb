package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. It is used when no Redis
// URL is configured and does not survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	lifetime time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore whose sessions live for lifetime.
func NewMemoryStore(lifetime time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Create stores a copy of sess under a new token.
func (m *MemoryStore) Create(_ context.Context, sess *Session) (string, error) {
	token, id, err := newToken()
	if err != nil {
		return "", err
	}

	now := m.now()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(m.lifetime)

	cp := *sess
	m.mu.Lock()
	m.sessions[id] = &cp
	m.mu.Unlock()

	return token, nil
}

// Get returns a copy of the session for token.
func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	id := tokenID(token)

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Expired(m.now()) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}

	cp := *sess
	return &cp, nil
}

// Delete removes the session for token. Unknown tokens are not an error.
func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, tokenID(token))
	m.mu.Unlock()
	return nil
}

// DeleteUser removes every session of userID.
func (m *MemoryStore) DeleteUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		if sess.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
