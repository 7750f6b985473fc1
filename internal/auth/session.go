package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/rbacdash/internal/clock"
)

// Session is an issued login
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore keeps sessions in memory. Sessions do not survive a restart.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	clock    clock.Clock
}

// NewSessionStore creates a store issuing sessions valid for ttl
func NewSessionStore(ttl time.Duration, c clock.Clock) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if c == nil {
		c = clock.System()
	}
	return &SessionStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		clock:    c,
	}
}

// Create issues a session for email
func (s *SessionStore) Create(email string) Session {
	sess := Session{
		Token:     uuid.New().String(),
		Email:     normalizeEmail(email),
		ExpiresAt: s.clock.Now().Add(s.ttl).UTC(),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	return sess
}

// Lookup returns the live session for token. Expired sessions are removed.
func (s *SessionStore) Lookup(token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrUnknownSession
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

// Revoke removes the session for token
func (s *SessionStore) Revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return false
	}
	delete(s.sessions, token)
	return true
}

// Sweep removes expired sessions and returns how many were removed
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
