// internal/protocol/protocol.go
//
// Package protocol is the wire contract shared with the client: event names,
// payload shapes, and the closed set of error codes. Field presence is
// significant on room:update — an absent password leaves it alone, an explicit
// null clears it.
package protocol

import "encoding/json"

// Lobby events. The lobby channel carries room summaries only, never player
// lists.
const (
	// LobbyRooms is both the client request for the current room list and the
	// server response carrying []RoomInfo.
	LobbyRooms = "lobby:rooms"
	// LobbyRoomAdded is broadcast to the lobby when a new room is created.
	LobbyRoomAdded = "lobby:room-added"
	// LobbyRoomUpdated is broadcast to the lobby when a room's player count or
	// settings change.
	LobbyRoomUpdated = "lobby:room-updated"
	// LobbyRoomRemoved is broadcast to the lobby with the removed room's id.
	LobbyRoomRemoved = "lobby:room-removed"
)

// Room events.
const (
	RoomCreate  = "room:create"
	RoomJoin    = "room:join"
	RoomLeave   = "room:leave"
	RoomUpdate  = "room:update"
	RoomJoined  = "room:joined"
	RoomLeft    = "room:left"
	RoomUpdated = "room:updated"
	RoomError   = "room:error"
)

// Error codes carried by room:error. The set is closed; clients switch on it.
const (
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeGameInProgress   = "GAME_IN_PROGRESS"
	CodeRoomFull         = "ROOM_FULL"
	CodeWrongPassword    = "WRONG_PASSWORD"
	CodeNotHost          = "NOT_HOST"
	CodeMaxPlayersTooLow = "MAX_PLAYERS_TOO_LOW"
	CodeJoinFailed       = "JOIN_FAILED"
)

// Pace is a cosmetic gameplay parameter chosen by the host.
type Pace string

const (
	PaceChill Pace = "chill"
	PaceSlow  Pace = "slow"
	PaceFast  Pace = "fast"
)

// Status is the room lifecycle state. Only "waiting" rooms are mutated by the
// coordination core; the transition out of waiting belongs to the game logic.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusFinished   Status = "finished"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomInfo is the summary shape used on the lobby channel.
type RoomInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	HostUserID     string `json:"hostUserId"`
	HostUsername   string `json:"hostUsername"`
	Pace           Pace   `json:"pace"`
	IsPrivate      bool   `json:"isPrivate"`
	MaxPlayers     int    `json:"maxPlayers"`
	CurrentPlayers int    `json:"currentPlayers"`
	Status         Status `json:"status"`
}

// RoomPlayer is the public identity of a room member. Connection ids and
// passwords never leave the server.
type RoomPlayer struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RoomDetail is the full shape broadcast on room channels.
type RoomDetail struct {
	RoomInfo
	Players []RoomPlayer `json:"players"`
}

type RoomCreatePayload struct {
	Name       string  `json:"name"`
	Pace       *Pace   `json:"pace,omitempty"`
	IsPrivate  *bool   `json:"isPrivate,omitempty"`
	MaxPlayers *int    `json:"maxPlayers,omitempty"`
	Password   *string `json:"password,omitempty"`
}

type RoomJoinPayload struct {
	RoomID   string  `json:"roomId"`
	Password *string `json:"password,omitempty"`
}

type RoomLeavePayload struct {
	RoomID string `json:"roomId"`
}

type RoomUpdatePayload struct {
	RoomID     string         `json:"roomId"`
	Name       *string        `json:"name,omitempty"`
	Pace       *Pace          `json:"pace,omitempty"`
	IsPrivate  *bool          `json:"isPrivate,omitempty"`
	MaxPlayers *int           `json:"maxPlayers,omitempty"`
	Password   OptionalString `json:"password"`
}

type RoomJoinedPayload struct {
	RoomDetail RoomDetail `json:"roomDetail"`
}

// RoomLeftPayload is sent to the leaving connection without detail, and to the
// remaining room members with it.
type RoomLeftPayload struct {
	RoomID     string      `json:"roomId"`
	RoomDetail *RoomDetail `json:"roomDetail,omitempty"`
}

type RoomUpdatedPayload struct {
	RoomDetail RoomDetail `json:"roomDetail"`
}

type RoomErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OptionalString is a tri-state JSON field: absent (Present false), explicit
// null (Present true, Value nil), or a string value. room:update uses it to
// distinguish "leave the password alone" from "clear the password".
type OptionalString struct {
	Present bool
	Value   *string
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Present = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Present || o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}
