// internal/handlers/router.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parlorlive/parlor/internal/hub"
	"github.com/parlorlive/parlor/internal/protocol"
	"github.com/parlorlive/parlor/internal/room"
)

// HandleEvent dispatches one inbound event. The event-name set is closed;
// anything else is answered with a room:error. Rejections only ever reach the
// requesting connection.
func (s *SocketServer) HandleEvent(c *hub.Conn, env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Event {
	case protocol.LobbyRooms:
		s.handleLobbyRooms(c)
	case protocol.RoomCreate:
		var p protocol.RoomCreatePayload
		if !decode(c, env.Data, &p) {
			return
		}
		s.handleRoomCreate(c, p)
	case protocol.RoomJoin:
		var p protocol.RoomJoinPayload
		if !decode(c, env.Data, &p) {
			return
		}
		s.handleRoomJoin(c, p)
	case protocol.RoomLeave:
		var p protocol.RoomLeavePayload
		if !decode(c, env.Data, &p) {
			return
		}
		s.handleRoomLeave(c, p)
	case protocol.RoomUpdate:
		var p protocol.RoomUpdatePayload
		if !decode(c, env.Data, &p) {
			return
		}
		s.handleRoomUpdate(c, p)
	default:
		c.SendError(protocol.CodeInvalidPayload, fmt.Sprintf("unknown event: %s", env.Event))
	}
}

// HandleDisconnect is the cleanup hook for a connection whose socket dropped.
// It applies the same registry mutation and broadcasts as an explicit leave,
// minus the requester-directed room:left (that connection is gone). The ws
// handler calls it exactly once, after the read pump exits; the server mutex
// keeps it from racing an in-flight leave for the same connection.
func (s *SocketServer) HandleDisconnect(c *hub.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.Rooms.FindByConnection(c.ID); ok {
		r, _, deleted, _ := s.Rooms.RemovePlayer(prev.ID, c.ID)
		if deleted {
			s.Hub.Broadcast(hub.Lobby, protocol.LobbyRoomRemoved, prev.ID)
			s.Journal.RoomRemoved(context.Background(), prev.ID)
			s.Logger.Infof("room: room %s removed (last player disconnected)", prev.ID)
		} else {
			detail := r.Detail()
			s.Hub.Broadcast(r.ID, protocol.RoomLeft, protocol.RoomLeftPayload{RoomID: r.ID, RoomDetail: &detail})
			s.Hub.Broadcast(hub.Lobby, protocol.LobbyRoomUpdated, r.Info())
			s.Logger.Infof("room: %s (conn %s) disconnected from room %s", c.Username, c.ID, r.ID)
		}
	}
	s.Hub.Unregister(c.ID)
}

func (s *SocketServer) handleLobbyRooms(c *hub.Conn) {
	rooms := s.Rooms.ListRooms()
	infos := make([]protocol.RoomInfo, 0, len(rooms))
	for i := range rooms {
		infos = append(infos, rooms[i].Info())
	}
	c.Send(protocol.LobbyRooms, infos)
}

func (s *SocketServer) handleRoomCreate(c *hub.Conn, p protocol.RoomCreatePayload) {
	name := strings.TrimSpace(p.Name)
	if rej := room.CheckCreate(name); rej != nil {
		c.SendError(rej.Code, rej.Message)
		return
	}

	r := s.Rooms.CreateRoom(c.ID, c.UserID, c.Username, room.CreateOptions{
		Name:       name,
		Pace:       p.Pace,
		IsPrivate:  p.IsPrivate,
		Password:   p.Password,
		MaxPlayers: p.MaxPlayers,
	})

	s.Hub.Move(c.ID, r.ID)
	c.Send(protocol.RoomJoined, protocol.RoomJoinedPayload{RoomDetail: r.Detail()})
	s.Hub.Broadcast(hub.Lobby, protocol.LobbyRoomAdded, r.Info())
	s.Journal.RoomCreated(context.Background(), r.ID, r.Name, r.HostUserID)

	s.Logger.Infof("room: %s (conn %s) created room %s %q", c.Username, c.ID, r.ID, name)
}

func (s *SocketServer) handleRoomJoin(c *hub.Conn, p protocol.RoomJoinPayload) {
	var current *room.Room
	if r, ok := s.Rooms.GetRoom(p.RoomID); ok {
		current = &r
	}
	if rej := room.CheckJoin(current, p.Password); rej != nil {
		c.SendError(rej.Code, rej.Message)
		return
	}

	r, ok := s.Rooms.AddPlayer(p.RoomID, c.ID, c.UserID, c.Username)
	if !ok {
		c.SendError(protocol.CodeJoinFailed, "Could not join room")
		return
	}

	s.Hub.Move(c.ID, r.ID)
	s.Hub.Broadcast(r.ID, protocol.RoomJoined, protocol.RoomJoinedPayload{RoomDetail: r.Detail()})
	s.Hub.Broadcast(hub.Lobby, protocol.LobbyRoomUpdated, r.Info())

	s.Logger.Infof("room: %s (conn %s) joined room %s", c.Username, c.ID, r.ID)
}

func (s *SocketServer) handleRoomLeave(c *hub.Conn, p protocol.RoomLeavePayload) {
	r, removed, deleted, found := s.Rooms.RemovePlayer(p.RoomID, c.ID)
	if !found || !removed {
		// Not a member of that room; the requester's channel must stay in
		// step with the registry, so nothing moves.
		c.SendError(protocol.CodeRoomNotFound, "Room not found")
		return
	}

	s.Hub.Move(c.ID, hub.Lobby)
	c.Send(protocol.RoomLeft, protocol.RoomLeftPayload{RoomID: p.RoomID})

	if deleted {
		s.Hub.Broadcast(hub.Lobby, protocol.LobbyRoomRemoved, p.RoomID)
		s.Journal.RoomRemoved(context.Background(), p.RoomID)
		s.Logger.Infof("room: room %s removed (empty)", p.RoomID)
	} else {
		detail := r.Detail()
		s.Hub.Broadcast(r.ID, protocol.RoomLeft, protocol.RoomLeftPayload{RoomID: p.RoomID, RoomDetail: &detail})
		s.Hub.Broadcast(hub.Lobby, protocol.LobbyRoomUpdated, r.Info())
		s.Logger.Infof("room: %s (userId %s) left room %s", c.Username, c.UserID, p.RoomID)
	}
}

func (s *SocketServer) handleRoomUpdate(c *hub.Conn, p protocol.RoomUpdatePayload) {
	var current *room.Room
	if r, ok := s.Rooms.GetRoom(p.RoomID); ok {
		current = &r
	}
	if rej := room.CheckUpdate(current, c.UserID, p.MaxPlayers); rej != nil {
		c.SendError(rej.Code, rej.Message)
		return
	}

	patch := room.Patch{
		Pace:      p.Pace,
		IsPrivate: p.IsPrivate,
		Password:  p.Password,
	}
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		patch.Name = &trimmed
	}
	if p.MaxPlayers != nil {
		clamped := room.ClampMaxPlayers(*p.MaxPlayers)
		patch.MaxPlayers = &clamped
	}

	r, ok := s.Rooms.UpdateRoom(p.RoomID, patch)
	if !ok {
		c.SendError(protocol.CodeRoomNotFound, "Room not found")
		return
	}

	s.Hub.Broadcast(r.ID, protocol.RoomUpdated, protocol.RoomUpdatedPayload{RoomDetail: r.Detail()})
	s.Hub.Broadcast(hub.Lobby, protocol.LobbyRoomUpdated, r.Info())

	s.Logger.Infof("room: %s (userId %s) updated room %s", c.Username, c.UserID, r.ID)
}

// decode unmarshals an event payload, answering INVALID_PAYLOAD on failure.
func decode(c *hub.Conn, data json.RawMessage, v any) bool {
	if len(data) == 0 {
		c.SendError(protocol.CodeInvalidPayload, "missing payload")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.SendError(protocol.CodeInvalidPayload, "malformed payload")
		return false
	}
	return true
}
