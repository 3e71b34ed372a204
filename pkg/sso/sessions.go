package sso

import (
	"sync"
	"time"
)

// SessionStore is an in-memory map of active SSO sessions keyed by session ID
// with expiry-based eviction.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timeout  time.Duration
	nowFn    func() time.Time
}

// NewSessionStore creates a store whose sessions live for timeout after
// creation or refresh.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 8 * time.Hour
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		nowFn:    time.Now,
	}
}

// Timeout returns the configured session lifetime.
func (s *SessionStore) Timeout() time.Duration {
	return s.timeout
}

// Put registers a session.
func (s *SessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// Get returns the session only while it is unexpired, bumping LastActivity as
// a side effect. An expired session is evicted, marked expired, and nil is
// returned.
func (s *SessionStore) Get(sessionID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	now := s.nowFn()
	if !session.ExpiresAt.After(now) {
		session.Status = SessionStatusExpired
		delete(s.sessions, sessionID)
		return nil
	}
	session.LastActivity = now
	return session
}

// Invalidate removes a session unconditionally and reports whether it existed.
func (s *SessionStore) Invalidate(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}

// Refresh extends an unexpired session to now+timeout and bumps LastActivity.
// Returns false for missing or already expired sessions.
func (s *SessionStore) Refresh(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	now := s.nowFn()
	if !session.ExpiresAt.After(now) {
		session.Status = SessionStatusExpired
		delete(s.sessions, sessionID)
		return false
	}
	session.ExpiresAt = now.Add(s.timeout)
	session.LastActivity = now
	return true
}

// CleanupExpired sweeps the store, evicting every expired session, and returns
// how many were removed. Intended to run on a periodic schedule.
func (s *SessionStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	removed := 0
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			session.Status = SessionStatusExpired
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Active returns the number of live sessions.
func (s *SessionStore) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot returns a copy of the current session list for statistics.
func (s *SessionStore) Snapshot() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		out = append(out, &copied)
	}
	return out
}
