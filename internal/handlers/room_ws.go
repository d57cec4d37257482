// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorlive/parlor/internal/auth"
	"github.com/parlorlive/parlor/internal/hub"
	"github.com/parlorlive/parlor/internal/protocol"
)

// SocketHandler upgrades the connection and runs the read/write pumps. The
// identity handshake happens before anything else: a connection without a
// valid token is closed without ever reaching the event router. Accepted
// connections start in the lobby channel.
func SocketHandler(logger *logrus.Logger, srv *SocketServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"parlor"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		identity, err := auth.AuthenticateToken(requestToken(r))
		if err != nil {
			logger.Warnf("identity handshake failed for %s: %v", remoteAddr, err)
			c.Close(websocket.StatusPolicyViolation, "authentication required")
			return
		}

		conn := hub.NewConn(uuid.NewString(), identity.UserID, identity.Username, logger)
		srv.Hub.Register(conn)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		logger.WithFields(logrus.Fields{
			"conn":     conn.ID,
			"user":     identity.UserID,
			"username": identity.Username,
			"remote":   remoteAddr,
		}).Info("WebSocket connected")

		go writePump(ctx, c, conn, logger)
		readPump(ctx, c, srv, conn, logger)

		// readPump exited: the socket is gone. Run the disconnect hook once.
		srv.HandleDisconnect(conn)
		logger.WithFields(logrus.Fields{
			"conn":   conn.ID,
			"remote": remoteAddr,
		}).Info("WebSocket disconnected")
	}
}

// requestToken pulls the session token from the auth_token cookie, falling
// back to a token query parameter for clients that cannot set cookies.
func requestToken(r *http.Request) string {
	if cookie, err := r.Cookie("auth_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// readPump feeds inbound frames to the event router until the connection
// closes or errors.
func readPump(ctx context.Context, c *websocket.Conn, srv *SocketServer, conn *hub.Conn, logger *logrus.Logger) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			switch {
			case closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway:
				logger.Infof("websocket closed normally for conn %s", conn.ID)
			case strings.Contains(err.Error(), "context canceled"):
			default:
				logger.Warnf("read error for conn %s: %v (close status %d)", conn.ID, err, closeStatus)
			}
			return
		}

		if typ != websocket.MessageText {
			logger.Warnf("ignoring non-text message type %d from conn %s", typ, conn.ID)
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			logger.Warnf("invalid json from conn %s: %v", conn.ID, err)
			conn.SendError(protocol.CodeInvalidPayload, "Invalid JSON format")
			continue
		}

		srv.HandleEvent(conn, env)
	}
}

// writePump drains the connection's outbound queue onto the wire and pings
// periodically so dead peers are detected.
func writePump(ctx context.Context, c *websocket.Conn, conn *hub.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-conn.Out:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				logger.Warnf("failed to marshal outgoing %s for conn %s: %v", env.Event, conn.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for conn %s: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for conn %s: %v, assuming disconnect", conn.ID, err)
				return
			}
		}
	}
}
