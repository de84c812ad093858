package store

import "sync"

// SessionRecord binds an opaque token to one seat in one game. It is
// minted once at create/join and reused across every reconnect.
type SessionRecord struct {
	Token    string
	GameID   string
	JoinCode string
	PlayerID string
}

// SessionStore is the registry of live sessions. Many physical
// connections may present the same token concurrently; the store only
// answers who the token is.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]SessionRecord)}
}

func (s *SessionStore) Put(rec SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.Token] = rec
}

func (s *SessionStore) Get(token string) (SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[token]
	return rec, ok
}

// DeleteGame removes every session minted for a game.
func (s *SessionStore) DeleteGame(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, rec := range s.sessions {
		if rec.GameID == gameID {
			delete(s.sessions, token)
		}
	}
}
