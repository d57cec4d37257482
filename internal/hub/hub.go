// internal/hub/hub.go
//
// Package hub tracks live connections and their channel membership. There is
// one well-known lobby channel plus one channel per room; a connection is in
// exactly one channel at any time.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/parlorlive/parlor/internal/protocol"
)

// Lobby is the channel every accepted connection starts in.
const Lobby = "lobby"

// Conn is a single live endpoint with its attached identity, bound once at
// connect time. Outbound events go through a buffered channel drained by the
// connection's write pump.
type Conn struct {
	ID       string
	UserID   string
	Username string
	Out      chan protocol.Envelope

	log *logrus.Logger
}

// NewConn builds a connection with a buffered outbound queue.
func NewConn(id, userID, username string, log *logrus.Logger) *Conn {
	return &Conn{
		ID:       id,
		UserID:   userID,
		Username: username,
		Out:      make(chan protocol.Envelope, 16),
		log:      log,
	}
}

// Send marshals data and pushes the event onto the outbound queue without
// blocking. A full or abandoned queue drops the event with a warning; the
// write pump owns actual delivery.
func (c *Conn) Send(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Warnf("hub: failed to marshal %s for conn %s: %v", event, c.ID, err)
		return
	}
	select {
	case c.Out <- protocol.Envelope{Event: event, Data: raw}:
	default:
		c.log.Warnf("hub: out queue full for conn %s, dropped %s", c.ID, event)
	}
}

// SendError is a convenience for the unicast room:error event.
func (c *Conn) SendError(code, message string) {
	c.Send(protocol.RoomError, protocol.RoomErrorPayload{Code: code, Message: message})
}

// Hub is the channel registry.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]*Conn            // connID -> conn
	channels map[string]map[string]*Conn // channel -> connID -> conn
	member   map[string]string           // connID -> channel
}

func New() *Hub {
	return &Hub{
		conns:    make(map[string]*Conn),
		channels: make(map[string]map[string]*Conn),
		member:   make(map[string]string),
	}
}

// Register adds the connection and places it in the lobby channel.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
	h.joinLocked(c, Lobby)
}

// Unregister drops the connection from its channel and from the hub. Safe to
// call for an already-removed connection.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID)
	delete(h.conns, connID)
}

// Move switches the connection to another channel. Membership is exclusive:
// the previous channel is always left first.
func (h *Hub) Move(connID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	h.leaveLocked(connID)
	h.joinLocked(c, channel)
}

// Channel reports which channel the connection is currently in.
func (h *Hub) Channel(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.member[connID]
	return ch, ok
}

// Broadcast sends the event to every connection in the channel. Sends are
// non-blocking, so a slow consumer cannot stall the fan-out.
func (h *Hub) Broadcast(channel, event string, data any) {
	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.channels[channel]))
	for _, c := range h.channels[channel] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.Send(event, data)
	}
}

func (h *Hub) joinLocked(c *Conn, channel string) {
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[string]*Conn)
		h.channels[channel] = set
	}
	set[c.ID] = c
	h.member[c.ID] = channel
}

func (h *Hub) leaveLocked(connID string) {
	ch, ok := h.member[connID]
	if !ok {
		return
	}
	delete(h.member, connID)
	if set, ok := h.channels[ch]; ok {
		delete(set, connID)
		if len(set) == 0 && ch != Lobby {
			delete(h.channels, ch)
		}
	}
}
