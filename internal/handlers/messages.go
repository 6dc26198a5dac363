// internal/handlers/messages.go
package handlers

// WSMessage is the envelope for every inbound WebSocket message. One flat
// struct covers all message kinds; each handler reads only the fields its
// kind defines and ignores the rest.
type WSMessage struct {
	Type string `json:"type"`

	// join_game fields.
	Mode     string   `json:"mode,omitempty"`
	Capacity int      `json:"capacity,omitempty"`
	Names    []string `json:"names,omitempty"`

	// player_input and activate_powerup fields. Side selects which paddle
	// the client is driving, which only matters in local modes.
	Side int     `json:"side"`
	Dir  float64 `json:"dir"`
	Slot int     `json:"slot"`

	// spectate_game / toggle_spectator_game target.
	SessionID string `json:"session_id,omitempty"`
}

// Inbound message kinds. Anything else gets an error reply, never a closed
// connection.
const (
	msgJoinGame        = "join_game"
	msgPlayerReady     = "player_ready"
	msgPlayerInput     = "player_input"
	msgActivatePowerup = "activate_powerup"
	msgPauseGame       = "pause_game"
	msgResumeGame      = "resume_game"
	msgQuitGame        = "quit_game"
	msgSpectateGame    = "spectate_game"
	msgToggleSpectator = "toggle_spectator_game"
	msgRequestLobby    = "request_lobby"
	msgPing            = "ping"
)
