package main

import (
	"sync"
)

// SessionRegistry holds the one live session per room ID, so each
// $path/$roomid is its own isolated game.
type SessionRegistry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	uniqueNames bool
}

func NewSessionRegistry(uniqueNames bool) *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[string]*Session),
		uniqueNames: uniqueNames,
	}
}

// GetOrCreate returns the session for roomID, constructing it with
// creatorID as host when absent. Atomic across concurrent callers:
// exactly one session object is ever visible for a given roomID, and
// isNew is true for exactly one caller.
func (r *SessionRegistry) GetOrCreate(roomID, creatorID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[roomID]; ok {
		return s, false
	}

	s := NewSession(roomID, creatorID, r.uniqueNames)
	r.sessions[roomID] = s
	return s, true
}

func (r *SessionRegistry) Get(roomID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[roomID]
	return s, ok
}

// RemoveSession drops the registry entry only if it still points at s,
// so a teardown racing a re-created room never removes the newcomer.
// Idempotent; a no-op when the entry is already gone.
func (r *SessionRegistry) RemoveSession(roomID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[roomID]; ok && cur == s {
		delete(r.sessions, roomID)
	}
}

// Sessions returns a point-in-time copy for iteration (idle reaping).
func (r *SessionRegistry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ConnectionIndex maps a live connection ID to the room it is currently
// in. Entries are written only after membership is established, and the
// last writer wins if a connection somehow issues overlapping joins.
type ConnectionIndex struct {
	mu    sync.RWMutex
	rooms map[string]string
}

func NewConnectionIndex() *ConnectionIndex {
	return &ConnectionIndex{
		rooms: make(map[string]string),
	}
}

func (ci *ConnectionIndex) Set(connID, roomID string) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.rooms[connID] = roomID
}

func (ci *ConnectionIndex) Get(connID string) (string, bool) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	roomID, ok := ci.rooms[connID]
	return roomID, ok
}

func (ci *ConnectionIndex) Remove(connID string) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	delete(ci.rooms, connID)
}

func (ci *ConnectionIndex) Len() int {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return len(ci.rooms)
}
