// internal/handlers/server.go
package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/middleware"
)

// ListSessionsHandler serves the lobby browser over plain HTTP, mirroring
// the request_lobby websocket message.
func ListSessionsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, gs.Dir.Lobby())
	}
}

// NewRouter wires the HTTP surface: account endpoints, the lobby listing
// and the game websocket, all behind the access log.
func NewRouter(logger *logrus.Logger, gs *GameServer) *http.ServeMux {
	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	mux.Handle("/user/create", logged(http.HandlerFunc(CreateUserHandler)))
	mux.Handle("/user/login", logged(http.HandlerFunc(LoginHandler)))
	mux.Handle("/sessions", logged(ListSessionsHandler(gs)))
	mux.Handle("/game/ws", logged(GameWSHandler(gs)))

	return mux
}
