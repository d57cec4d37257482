// internal/room/store.go
package room

import (
	"sync"

	"github.com/google/uuid"

	"github.com/parlorlive/parlor/internal/protocol"
)

// Store holds every active room in memory behind a single mutex. Rooms are
// volatile: a room with zero players is deleted on the spot, never kept.
//
// Each method is atomic on its own. The websocket router additionally
// serializes whole events (validate, mutate, notify), so no connection ever
// observes a partially applied mutation.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// CreateRoom registers a new room with the creator as host and sole player.
// Defaults and clamping are applied here; validation (the non-empty name
// check) is the caller's job before this point. Always succeeds.
func (s *Store) CreateRoom(hostConnID, userID, username string, opts CreateOptions) Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Room{
		ID:           uuid.NewString(),
		Name:         opts.Name,
		HostConnID:   hostConnID,
		HostUserID:   userID,
		HostUsername: username,
		Pace:         protocol.PaceChill,
		MaxPlayers:   4,
		Status:       protocol.StatusWaiting,
		Players:      []Player{{ConnID: hostConnID, UserID: userID, Username: username}},
	}
	if opts.Pace != nil {
		r.Pace = *opts.Pace
	}
	if opts.IsPrivate != nil {
		r.IsPrivate = *opts.IsPrivate
	}
	if opts.Password != nil {
		pw := *opts.Password
		r.Password = &pw
	}
	if opts.MaxPlayers != nil && *opts.MaxPlayers != 0 {
		r.MaxPlayers = ClampMaxPlayers(*opts.MaxPlayers)
	}

	s.rooms[r.ID] = r
	return r.clone()
}

// GetRoom returns a snapshot of the room, if present.
func (s *Store) GetRoom(roomID string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return r.clone(), true
}

// ListRooms returns a snapshot of all rooms. Iteration order is not
// meaningful.
func (s *Store) ListRooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.clone())
	}
	return out
}

// AddPlayer appends a player to the room. It refuses (without mutating) if the
// room is absent, full, no longer waiting, or already contains the userId.
// Categorized rejections belong to the rules layer; this is the registry's own
// last line of defense.
func (s *Store) AddPlayer(roomID, connID, userID, username string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	if len(r.Players) >= r.MaxPlayers {
		return Room{}, false
	}
	if r.Status != protocol.StatusWaiting {
		return Room{}, false
	}
	for _, p := range r.Players {
		if p.UserID == userID {
			return Room{}, false
		}
	}

	r.Players = append(r.Players, Player{ConnID: connID, UserID: userID, Username: username})
	return r.clone(), true
}

// RemovePlayer drops the entry matching connID from the room. If the room
// empties it is deleted, and the last-known snapshot is returned with
// deleted=true. If the host left, the first remaining player (join order)
// becomes the new host. The removed result is false when connID was not a
// member (the room is untouched); found is false when no such room exists.
func (s *Store) RemovePlayer(roomID, connID string) (snapshot Room, removed, deleted, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false, false, false
	}

	kept := r.Players[:0]
	for _, p := range r.Players {
		if p.ConnID != connID {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(r.Players) {
		return r.clone(), false, false, true
	}
	r.Players = kept

	if len(r.Players) == 0 {
		delete(s.rooms, roomID)
		return r.clone(), true, true, true
	}

	if r.HostConnID == connID {
		next := r.Players[0]
		r.HostConnID = next.ConnID
		r.HostUserID = next.UserID
		r.HostUsername = next.Username
	}
	return r.clone(), true, false, true
}

// UpdateRoom applies the patch fields that are present, leaving the rest
// untouched. Host permission, status gating, and the capacity floor are
// checked by the rules layer strictly before this call; the patch's
// MaxPlayers is expected to be pre-clamped.
func (s *Store) UpdateRoom(roomID string, patch Patch) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false
	}

	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Pace != nil {
		r.Pace = *patch.Pace
	}
	if patch.IsPrivate != nil {
		r.IsPrivate = *patch.IsPrivate
	}
	if patch.MaxPlayers != nil {
		r.MaxPlayers = *patch.MaxPlayers
	}
	if patch.Password.Present {
		if patch.Password.Value == nil {
			r.Password = nil
		} else {
			pw := *patch.Password.Value
			r.Password = &pw
		}
	}
	return r.clone(), true
}

// FindByConnection scans all rooms for the one containing connID. Used by the
// disconnect hook, which only knows the connection that vanished.
func (s *Store) FindByConnection(connID string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		for _, p := range r.Players {
			if p.ConnID == connID {
				return r.clone(), true
			}
		}
	}
	return Room{}, false
}
