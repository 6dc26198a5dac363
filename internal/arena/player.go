// internal/arena/player.go
package arena

import "github.com/google/uuid"

// Player is a gameplay participant in a match. Human players carry the
// connection identity they joined with in ClientID; CPU fill players carry
// the zero UUID there and IsCPU set.
type Player struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id,omitempty"`
	Name     string    `json:"name"`
	Side     int       `json:"side"`
	IsCPU    bool      `json:"is_cpu"`
}

// NewCPUPlayer mints a synthetic participant for the given side.
func NewCPUPlayer(side int) *Player {
	return &Player{
		ID:    uuid.New(),
		Name:  "CPU",
		Side:  side,
		IsCPU: true,
	}
}
