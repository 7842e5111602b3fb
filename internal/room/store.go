// internal/room/store.go
package room

import (
	"math/rand/v2"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// Store holds all live rooms in memory, keyed by code. It is constructed
// explicitly and injected wherever rooms are needed; there is no ambient
// process-wide table.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewStore returns an empty room store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// randomCode draws a 6-character code uniformly from [A-Z0-9].
func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// Create allocates a room under a fresh unique code and registers it.
// Collisions are regenerated under the store lock, so two rooms can never
// share a code.
func (s *Store) Create(maxPlayers int) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := randomCode()
	for _, taken := s.rooms[code]; taken; _, taken = s.rooms[code] {
		code = randomCode()
	}

	r := newRoom(code, maxPlayers)
	s.rooms[code] = r
	log.Debugf("room store: created room %s", code)
	return r
}

// Get looks up a live room by code.
func (s *Store) Get(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	return r, ok
}

// Delete removes a room from the store. Deleting an absent code is a no-op;
// teardown timers and disconnect cascades may race to delete the same room.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; ok {
		delete(s.rooms, code)
		log.Debugf("room store: deleted room %s", code)
	}
}

// Len reports how many rooms are live.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
