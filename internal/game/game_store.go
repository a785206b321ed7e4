// internal/game/game_store.go
package game

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the in-memory registry of live sessions.
type Store struct {
	mu    sync.Mutex
	games map[uuid.UUID]*MurlanGame
}

func NewStore() *Store {
	return &Store{games: make(map[uuid.UUID]*MurlanGame)}
}

func (s *Store) Add(g *MurlanGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

func (s *Store) Get(id uuid.UUID) (*MurlanGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	return g, ok
}

func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
}

// Active returns every session not yet settled or aborted.
func (s *Store) Active() []*MurlanGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MurlanGame, 0, len(s.games))
	for _, g := range s.games {
		if st := g.CurrentStatus(); st != StatusSettled && st != StatusAborted {
			out = append(out, g)
		}
	}
	return out
}

// GetByLobbyID returns the session spawned from a lobby, or nil.
func (s *Store) GetByLobbyID(lobbyID uuid.UUID) *MurlanGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.LobbyID == lobbyID {
			return g
		}
	}
	return nil
}
