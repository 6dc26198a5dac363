// internal/handlers/game_ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volleyhq/volley/internal/arena"
	"github.com/volleyhq/volley/internal/auth"
	"github.com/volleyhq/volley/internal/session"
)

var authOnce sync.Once

// newTestServer spins up the full router over an in-memory directory with a
// fast ruleset so matches finish quickly.
func newTestServer(t *testing.T) (*httptest.Server, *GameServer) {
	t.Helper()
	authOnce.Do(auth.Init)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := arena.DefaultConfig()
	cfg.TickRate = 500
	cfg.WinScore = 1
	cfg.ServeDelay = 0
	cfg.BallSpeed = 200

	dir := session.NewDirectory(cfg, nil, session.WithGracePeriod(2*time.Second))
	gs := NewGameServer(logger, dir)
	srv := httptest.NewServer(NewRouter(logger, gs))
	t.Cleanup(srv.Close)
	return srv, gs
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/ws"
}

func dial(t *testing.T, srv *httptest.Server, opts *websocket.DialOptions) (*websocket.Conn, *http.Response) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if opts == nil {
		opts = &websocket.DialOptions{Subprotocols: []string{"volley"}}
	}
	conn, resp, err := websocket.Dial(ctx, wsURL(srv), opts)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, resp
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "connection dropped while waiting for %q", wantType)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == wantType {
			return m
		}
	}
}

func TestRejectsMissingSubprotocol(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}

func TestUnknownMessageTypeGetsErrorReply(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _ := dial(t, srv, nil)

	send(t, conn, map[string]string{"type": "bogus"})
	m := readUntil(t, conn, "error")
	assert.Contains(t, m["message"], "unknown message type")

	// The connection survives and still answers pings.
	send(t, conn, map[string]string{"type": "ping"})
	readUntil(t, conn, "pong")
}

func TestMalformedJSONGetsErrorReply(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _ := dial(t, srv, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	m := readUntil(t, conn, "error")
	assert.Contains(t, m["message"], "invalid JSON")
}

func TestSingleModePlaysToCompletion(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _ := dial(t, srv, nil)

	send(t, conn, map[string]interface{}{"type": "join_game", "mode": "single"})
	joined := readUntil(t, conn, "game_joined")
	assert.Equal(t, "single", joined["mode"])
	assert.NotEmpty(t, joined["session_id"])

	send(t, conn, map[string]string{"type": "player_ready"})
	assign := readUntil(t, conn, "side_assignment")
	assert.Equal(t, float64(0), assign["side"])
	readUntil(t, conn, "game_started")

	// Win score 1 with a fast ball: somebody scores almost immediately.
	ended := readUntil(t, conn, "game_ended")
	assert.NotNil(t, ended["score"])
}

func TestDoubleJoinIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _ := dial(t, srv, nil)

	send(t, conn, map[string]interface{}{"type": "join_game", "mode": "remote"})
	readUntil(t, conn, "game_joined")

	send(t, conn, map[string]interface{}{"type": "join_game", "mode": "remote"})
	m := readUntil(t, conn, "error")
	assert.Contains(t, m["message"], "already belongs")
}

func TestSessionListingOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _ := dial(t, srv, nil)

	send(t, conn, map[string]interface{}{"type": "join_game", "mode": "remote"})
	readUntil(t, conn, "game_joined")

	resp, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []session.LobbyEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "remote", entries[0].Mode)
	assert.Equal(t, "waiting", entries[0].State)
}

func TestRequestLobbyOverWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _ := dial(t, srv, nil)

	send(t, conn, map[string]interface{}{"type": "join_game", "mode": "remote"})
	readUntil(t, conn, "game_joined")

	send(t, conn, map[string]string{"type": "request_lobby"})
	m := readUntil(t, conn, "lobby_list")
	sessions, ok := m["sessions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, sessions, 1)
}

func TestReconnectKeepsSeat(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, resp := dial(t, srv, nil)

	// The handshake response carries the minted guest token.
	setCookie := resp.Header.Get("Set-Cookie")
	require.Contains(t, setCookie, "auth_token=")
	cookie := strings.Split(setCookie, ";")[0]

	send(t, conn, map[string]interface{}{"type": "join_game", "mode": "remote"})
	readUntil(t, conn, "game_joined")
	conn.Close(websocket.StatusNormalClosure, "")

	// Come back within the grace period under the same identity.
	hdr := http.Header{}
	hdr.Set("Cookie", cookie)
	conn2, _ := dial(t, srv, &websocket.DialOptions{
		Subprotocols: []string{"volley"},
		HTTPHeader:   hdr,
	})

	send(t, conn2, map[string]interface{}{"type": "join_game", "mode": "remote"})
	m := readUntil(t, conn2, "error")
	assert.Contains(t, m["message"], "already belongs")
}

func TestToggleSpectatorOnAndOff(t *testing.T) {
	srv, _ := newTestServer(t)
	player, _ := dial(t, srv, nil)

	send(t, player, map[string]interface{}{"type": "join_game", "mode": "remote"})
	joined := readUntil(t, player, "game_joined")
	sessionID := joined["session_id"].(string)

	watcher, _ := dial(t, srv, nil)
	send(t, watcher, map[string]interface{}{"type": "toggle_spectator_game", "session_id": sessionID})
	m := readUntil(t, watcher, "spectating")
	assert.Equal(t, sessionID, m["session_id"])

	send(t, watcher, map[string]interface{}{"type": "toggle_spectator_game", "session_id": sessionID})
	m = readUntil(t, watcher, "spectating_stopped")
	assert.Equal(t, sessionID, m["session_id"])
}

func TestSpectateUnknownSessionFails(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _ := dial(t, srv, nil)

	send(t, conn, map[string]interface{}{
		"type":       "spectate_game",
		"session_id": "00000000-0000-0000-0000-000000000001",
	})
	m := readUntil(t, conn, "error")
	assert.Contains(t, m["message"], "no such session")
}
