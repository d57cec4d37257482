// internal/room/rules.go
package room

import (
	"fmt"
	"strings"

	"github.com/parlorlive/parlor/internal/protocol"
)

// Rejection is a structured refusal surfaced to the requester as a room:error
// event. It is a value, not an error: rejected operations are expected
// outcomes and never corrupt state.
type Rejection struct {
	Code    string
	Message string
}

func reject(code, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

// CheckCreate validates a create request. The only precondition is a
// non-blank name.
func CheckCreate(name string) *Rejection {
	if strings.TrimSpace(name) == "" {
		return reject(protocol.CodeInvalidPayload, "name is required")
	}
	return nil
}

// CheckJoin validates a join against the room's current state, in order:
// existence, status, capacity, then password. The supplied password matches a
// nil stored password only when it is itself absent.
func CheckJoin(r *Room, password *string) *Rejection {
	if r == nil {
		return reject(protocol.CodeRoomNotFound, "Room not found")
	}
	if r.Status != protocol.StatusWaiting {
		return reject(protocol.CodeGameInProgress, "Game already started")
	}
	if len(r.Players) >= r.MaxPlayers {
		return reject(protocol.CodeRoomFull, "Room is full")
	}
	if r.IsPrivate && !passwordsMatch(r.Password, password) {
		return reject(protocol.CodeWrongPassword, "Incorrect password")
	}
	return nil
}

// CheckUpdate validates a host-initiated settings change. The maxPlayers
// floor is checked against the raw requested value, before clamping.
func CheckUpdate(r *Room, userID string, maxPlayers *int) *Rejection {
	if r == nil {
		return reject(protocol.CodeRoomNotFound, "Room not found")
	}
	if r.HostUserID != userID {
		return reject(protocol.CodeNotHost, "Only the host can update room settings")
	}
	if r.Status != protocol.StatusWaiting {
		return reject(protocol.CodeGameInProgress, "Cannot change settings while a game is in progress")
	}
	if maxPlayers != nil && *maxPlayers < len(r.Players) {
		return reject(protocol.CodeMaxPlayersTooLow,
			fmt.Sprintf("maxPlayers cannot be less than the current player count (%d)", len(r.Players)))
	}
	return nil
}

// CheckLeave validates a leave request. Any current member may leave at any
// time, regardless of room status.
func CheckLeave(r *Room) *Rejection {
	if r == nil {
		return reject(protocol.CodeRoomNotFound, "Room not found")
	}
	return nil
}

func passwordsMatch(stored, supplied *string) bool {
	if stored == nil || supplied == nil {
		return stored == nil && supplied == nil
	}
	return *stored == *supplied
}
