// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/middleware"
	"github.com/volleyhq/volley/internal/models"
	"github.com/volleyhq/volley/internal/session"
)

// GameServer is the protocol layer over the session directory: it owns the
// websocket upgrade, the per-connection read loop and write pump, and the
// message dispatch into sessions.
type GameServer struct {
	Logger *logrus.Logger
	Dir    *session.Directory
}

func NewGameServer(logger *logrus.Logger, dir *session.Directory) *GameServer {
	return &GameServer{Logger: logger, Dir: dir}
}

// GameWSHandler upgrades the HTTP connection to a WebSocket and runs the
// message loop for it. Authentication happens before the upgrade so a guest
// token cookie can still be set; afterwards the connection is bound to one
// models.Client that sessions write to through its OutChan.
func GameWSHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := resolveUser(w, r)
		if err != nil {
			gs.Logger.Warnf("websocket auth failed: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"volley"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			gs.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if conn.Subprotocol() != "volley" {
			gs.Logger.Warnf("client %s connected with invalid subprotocol: %q", user.ID, conn.Subprotocol())
			conn.Close(websocket.StatusCode(BadSubprotocolError), "Client must use the 'volley' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(gs.Logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := &models.Client{
			ID:            user.ID,
			Username:      user.Username,
			Authenticated: !user.Guest,
			Guest:         user.Guest,
			Connected:     true,
			Conn:          conn,
			OutChan:       make(chan interface{}, 256),
			Cancel:        cancel,
		}

		// A reconnect inside the grace period keeps the old seat; the
		// session just needs the fresh connection object.
		if gs.Dir.ClientReconnected(client.ID) {
			if s := gs.Dir.SessionFor(client.ID); s != nil {
				s.ReplaceClient(client)
				gs.Logger.Infof("client %s reattached to session %s", client.ID, s.ID())
			}
		}

		go writePump(ctx, conn, client.OutChan, gs.Logger)

		watched := make(map[uuid.UUID]bool)
		gs.readMessages(ctx, conn, client, watched)

		client.Connected = false
		for id := range watched {
			if s := gs.Dir.Get(id); s != nil {
				s.RemoveSpectator(client.ID)
			}
		}
		gs.Dir.ClientDisconnected(client.ID)
		middleware.LogWebSocketDisconnect(gs.Logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// writePump drains the client's outbound channel onto the wire. A write
// error ends the pump; the read loop notices the broken connection on its
// own.
func writePump(ctx context.Context, conn *websocket.Conn, out <-chan interface{}, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-out:
			if !ok {
				return
			}
			data, err := json.Marshal(payload)
			if err != nil {
				logger.Errorf("failed to marshal outbound message: %v", err)
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 3*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}

// readMessages reads until the connection drops or the context ends. A
// malformed message earns an error reply, never a closed connection.
func (gs *GameServer) readMessages(ctx context.Context, conn *websocket.Conn, client *models.Client, watched map[uuid.UUID]bool) {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				gs.Logger.Infof("websocket closed normally for client %s", client.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				gs.Logger.Infof("websocket context canceled for client %s", client.ID)
			} else {
				gs.Logger.Warnf("websocket read error for client %s: %v", client.ID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			gs.Logger.Warnf("invalid JSON from client %s: %v", client.ID, err)
			client.WriteError("invalid JSON payload")
			continue
		}
		gs.handleMessage(client, watched, msg)
	}
}

// handleMessage routes one inbound message. Gameplay messages for a client
// with no session are silent no-ops: input racing a finished or departed
// session is ordinary, not an error.
func (gs *GameServer) handleMessage(c *models.Client, watched map[uuid.UUID]bool, msg WSMessage) {
	switch msg.Type {
	case msgJoinGame:
		mode, err := session.ParseMode(msg.Mode)
		if err != nil {
			c.WriteError(err.Error())
			return
		}
		s, err := gs.Dir.Join(c, mode, msg.Capacity, msg.Names)
		if err != nil {
			c.WriteError(err.Error())
			return
		}
		c.Write(map[string]interface{}{
			"type":       "game_joined",
			"session_id": s.ID(),
			"mode":       mode.String(),
			"capacity":   s.PlayerCapacity(),
		})

	case msgPlayerReady:
		if s := gs.Dir.SessionFor(c.ID); s != nil {
			s.MarkReady(c.ID)
		} else {
			c.WriteError("not in a session")
		}

	case msgPlayerInput:
		if s := gs.Dir.SessionFor(c.ID); s != nil {
			s.HandleInput(c.ID, msg.Side, msg.Dir)
		}

	case msgActivatePowerup:
		if s := gs.Dir.SessionFor(c.ID); s != nil {
			s.ActivatePowerup(c.ID, msg.Side, msg.Slot)
		}

	case msgPauseGame:
		if s := gs.Dir.SessionFor(c.ID); s != nil {
			s.Pause(c.ID)
		}

	case msgResumeGame:
		if s := gs.Dir.SessionFor(c.ID); s != nil {
			s.Resume(c.ID)
		}

	case msgQuitGame:
		gs.Dir.Quit(c.ID)

	case msgSpectateGame:
		gs.startSpectating(c, watched, msg.SessionID)

	case msgToggleSpectator:
		id, err := uuid.Parse(msg.SessionID)
		if err != nil {
			c.WriteError("invalid session_id")
			return
		}
		if watched[id] {
			if s := gs.Dir.Get(id); s != nil {
				s.RemoveSpectator(c.ID)
			}
			delete(watched, id)
			c.Write(map[string]interface{}{
				"type":       "spectating_stopped",
				"session_id": id,
			})
			return
		}
		gs.startSpectating(c, watched, msg.SessionID)

	case msgRequestLobby:
		c.Write(map[string]interface{}{
			"type":     "lobby_list",
			"sessions": gs.Dir.Lobby(),
		})

	case msgPing:
		c.Write(map[string]string{"type": "pong"})

	default:
		c.WriteError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (gs *GameServer) startSpectating(c *models.Client, watched map[uuid.UUID]bool, sessionID string) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		c.WriteError("invalid session_id")
		return
	}
	s, err := gs.Dir.Spectate(c, id)
	if err != nil {
		c.WriteError(err.Error())
		return
	}
	watched[s.ID()] = true
	c.Write(map[string]interface{}{
		"type":       "spectating",
		"session_id": s.ID(),
	})
}
