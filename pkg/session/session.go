// Package session stores the client's session token. Token presence is the
// only authentication signal the catalog consumes; issuing and validating
// tokens is the backend's job.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrNoSession is returned when no token is stored.
var ErrNoSession = errors.New("no session")

// Session is what a successful login leaves behind.
type Session struct {
	Token     string    `json:"session_token"`
	Username  string    `json:"username"`
	UserID    int64     `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the current session.
type Store interface {
	// Get returns the stored session or ErrNoSession.
	Get() (Session, error)
	// Save replaces the stored session.
	Save(s Session) error
	// Clear removes the stored session. Clearing an empty store is not an error.
	Clear() error
	// HasSession reports whether a token is stored right now.
	HasSession() bool
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	session *Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements Store.
func (m *MemoryStore) Get() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || m.session.Token == "" {
		return Session{}, ErrNoSession
	}
	return *m.session, nil
}

// Save implements Store.
func (m *MemoryStore) Save(s Session) error {
	if s.Token == "" {
		return errors.New("session token cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// HasSession implements Store.
func (m *MemoryStore) HasSession() bool {
	_, err := m.Get()
	return err == nil
}
