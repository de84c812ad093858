// Package store holds the volatile in-memory state: games, sessions
// and the idempotency cache. Everything dies with the process.
package store

import (
	"sync"

	"github.com/nightvote/resistance-backend/internal/engine"
)

// GameStore maps game id to current state. States are values; writers
// are serialized per game by the owning room, so last-write-wins is
// safe here.
type GameStore struct {
	mu    sync.RWMutex
	games map[string]engine.State
}

func NewGameStore() *GameStore {
	return &GameStore{games: make(map[string]engine.State)}
}

func (s *GameStore) Get(id string) (engine.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.games[id]
	return st, ok
}

func (s *GameStore) Save(st engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[st.ID] = st
}

func (s *GameStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
}

func (s *GameStore) List() []engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.State, 0, len(s.games))
	for _, st := range s.games {
		out = append(out, st)
	}
	return out
}
