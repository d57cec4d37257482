// internal/room/room.go
package room

import (
	"github.com/parlorlive/parlor/internal/protocol"
)

// Player is one room member, keyed by its live connection. A userId appears
// at most once per room.
type Player struct {
	ConnID   string
	UserID   string
	Username string
}

// Room is the unit of coordination. Instances are owned by a Store; everything
// handed out by the Store is a copy, so holders never alias live state.
type Room struct {
	ID           string
	Name         string
	HostConnID   string
	HostUserID   string
	HostUsername string
	Pace         protocol.Pace
	IsPrivate    bool
	Password     *string // nil means no password required
	MaxPlayers   int
	Status       protocol.Status
	Players      []Player
}

// clone deep-copies the room so snapshots can cross the store boundary.
func (r *Room) clone() Room {
	c := *r
	c.Players = make([]Player, len(r.Players))
	copy(c.Players, r.Players)
	if r.Password != nil {
		pw := *r.Password
		c.Password = &pw
	}
	return c
}

// Info converts the room to the summary shape used on the lobby channel.
func (r *Room) Info() protocol.RoomInfo {
	return protocol.RoomInfo{
		ID:             r.ID,
		Name:           r.Name,
		HostUserID:     r.HostUserID,
		HostUsername:   r.HostUsername,
		Pace:           r.Pace,
		IsPrivate:      r.IsPrivate,
		MaxPlayers:     r.MaxPlayers,
		CurrentPlayers: len(r.Players),
		Status:         r.Status,
	}
}

// Detail converts the room to the full shape broadcast on its own channel.
// Connection ids and the password stay server-side.
func (r *Room) Detail() protocol.RoomDetail {
	players := make([]protocol.RoomPlayer, len(r.Players))
	for i, p := range r.Players {
		players[i] = protocol.RoomPlayer{UserID: p.UserID, Username: p.Username}
	}
	return protocol.RoomDetail{RoomInfo: r.Info(), Players: players}
}

// CreateOptions carries the caller-supplied settings for a new room. Nil
// fields take defaults: pace "chill", public, no password, maxPlayers 4.
type CreateOptions struct {
	Name       string
	Pace       *protocol.Pace
	IsPrivate  *bool
	Password   *string
	MaxPlayers *int
}

// Patch is a partial settings update. Nil fields are left untouched. Password
// is tri-state: absent keeps the current value, explicit null clears it.
type Patch struct {
	Name       *string
	Pace       *protocol.Pace
	IsPrivate  *bool
	MaxPlayers *int
	Password   protocol.OptionalString
}

// ClampMaxPlayers forces a capacity into the supported [2,4] range.
func ClampMaxPlayers(n int) int {
	if n < 2 {
		return 2
	}
	if n > 4 {
		return 4
	}
	return n
}
