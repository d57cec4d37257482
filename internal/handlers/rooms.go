// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/parlorlive/parlor/internal/protocol"
)

// ListRoomsHandler returns the current room summaries as JSON. It serves the
// same snapshot the lobby:rooms socket event does, for dashboards and
// debugging.
func ListRoomsHandler(srv *SocketServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rooms := srv.Rooms.ListRooms()
		infos := make([]protocol.RoomInfo, 0, len(rooms))
		for i := range rooms {
			infos = append(infos, rooms[i].Info())
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(infos)
	}
}
