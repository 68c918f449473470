// Package verification gates new chat participants behind a challenge and
// resolves each pending session exactly once.
package verification

import (
	"sync"

	"github.com/ashureev/gatekeeper/internal/domain"
)

// SessionStore holds the pending sessions, keyed by chat and participant.
// Every operation is serialized by a single mutex.
type SessionStore struct {
	mu          sync.Mutex
	sessions    map[domain.Key]*domain.Session
	byChallenge map[string]domain.Key
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:    make(map[domain.Key]*domain.Session),
		byChallenge: make(map[string]domain.Key),
	}
}

// Insert adds s unless a session for the same key already exists.
func (st *SessionStore) Insert(s *domain.Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.sessions[s.Key]; exists {
		return false
	}
	st.sessions[s.Key] = s
	if s.ChallengeID != "" {
		st.byChallenge[s.ChallengeID] = s.Key
	}
	return true
}

// Get returns a snapshot of the session for key.
func (st *SessionStore) Get(key domain.Key) (domain.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[key]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// Has reports whether key is currently gated.
func (st *SessionStore) Has(key domain.Key) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[key]
	return ok
}

// Take removes and returns the session for key. When challengeID is not
// empty the session is only removed if it carries that challenge.
// Only one caller can ever observe ok == true for a given session.
func (st *SessionStore) Take(key domain.Key, challengeID string) (*domain.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[key]
	if !ok {
		return nil, false
	}
	if challengeID != "" && s.ChallengeID != challengeID {
		return nil, false
	}
	delete(st.sessions, key)
	delete(st.byChallenge, s.ChallengeID)
	return s, true
}

// FindByChallenge resolves an answer event to the session it belongs to.
func (st *SessionStore) FindByChallenge(userID int64, challengeID string) (domain.Key, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	key, ok := st.byChallenge[challengeID]
	if !ok || key.UserID != userID {
		return domain.Key{}, false
	}
	return key, true
}

// Len returns the number of pending sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
