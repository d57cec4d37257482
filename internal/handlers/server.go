// internal/handlers/server.go
package handlers

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/parlorlive/parlor/internal/hub"
	"github.com/parlorlive/parlor/internal/journal"
	"github.com/parlorlive/parlor/internal/room"
)

// SocketServer owns the room registry and the channel hub, and routes every
// inbound socket event.
//
// mu serializes whole events: the validate-mutate-notify sequence of one event
// completes before the next begins, so no connection ever sees a partially
// applied mutation and per-room notification order matches mutation order.
type SocketServer struct {
	mu sync.Mutex

	Rooms   *room.Store
	Hub     *hub.Hub
	Journal *journal.Journal
	Logger  *logrus.Logger
}

// NewSocketServer wires an empty registry and hub. journal may be nil.
func NewSocketServer(logger *logrus.Logger, jnl *journal.Journal) *SocketServer {
	return &SocketServer{
		Rooms:   room.NewStore(),
		Hub:     hub.New(),
		Journal: jnl,
		Logger:  logger,
	}
}
