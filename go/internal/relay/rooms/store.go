package rooms

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// adminField is the state key under which the admin session is exposed in
// snapshots. Room keys are prefixed (see KeyFor) so a match identifier can
// never collide with it.
const adminField = "admin"

// KeyFor derives the store key for a match identifier.
func KeyFor(match string) string {
	return "match" + match
}

// room is the server-side aggregate for one match: the admin session currently
// controlling the clock plus the last state the admin pushed. Membership lives
// in the transport layer and is only consulted through the occupancy predicate
// handed to RemoveIfEmpty.
type room struct {
	admin string
	state State
}

// Store owns the mapping from room key to room. All access is serialized by a
// single mutex; operations on absent rooms degrade to empty results instead of
// failing so join and update stay idempotent.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewStore creates an empty room store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*room)}
}

// GetOrCreate returns a snapshot of the room for key, creating an empty room
// with no admin if it does not exist yet. The second result reports whether the
// room was created by this call.
func (s *Store) GetOrCreate(key string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[key]
	if !ok {
		r = &room{state: make(State)}
		s.rooms[key] = r
		return r.snapshot(), true
	}
	return r.snapshot(), false
}

// Merge shallow-merges fields into the room's state, overwriting same-named
// fields and retaining everything else. A merge into an absent room creates it.
func (s *Store) Merge(key string, fields State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[key]
	if !ok {
		r = &room{state: make(State)}
		s.rooms[key] = r
	}
	for k, v := range fields {
		r.state[k] = v
	}
}

// SetAdmin binds sessionID as the room's admin, replacing any previous admin
// unconditionally. Concurrent admin claims are not arbitrated: the last writer
// wins and the displaced admin is not notified.
func (s *Store) SetAdmin(key, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[key]
	if !ok {
		return
	}
	r.admin = sessionID
}

// Admin returns the room's current admin session, or "" when the room is
// absent or has no admin.
func (s *Store) Admin(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[key]
	if !ok {
		return ""
	}
	return r.admin
}

// ClearAdminIfMatches clears the room's admin only when it equals sessionID,
// reporting whether a claim was cleared. Admin is never reassigned here.
func (s *Store) ClearAdminIfMatches(key, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[key]
	if !ok || r.admin != sessionID {
		return false
	}
	r.admin = ""
	return true
}

// RemoveIfEmpty deletes the room when the occupancy predicate reports no
// remaining members for its key, returning whether the room was removed.
func (s *Store) RemoveIfEmpty(key string, occupied func(roomKey string) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[key]; !ok {
		return false
	}
	if occupied(key) {
		return false
	}
	delete(s.rooms, key)
	log.Debug().Str("room", key).Msg("removed empty room")
	return true
}

// Snapshot returns a copy of the room's state, with the admin session exposed
// under the "admin" field when one is bound. The second result reports whether
// the room exists.
func (s *Store) Snapshot(key string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[key]
	if !ok {
		return nil, false
	}
	return r.snapshot(), true
}

// Keys returns the keys of all tracked rooms.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.rooms))
	for k := range s.rooms {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of tracked rooms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (r *room) snapshot() State {
	out := r.state.Clone()
	if r.admin != "" {
		out[adminField] = String(r.admin)
	}
	return out
}
