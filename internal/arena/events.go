// internal/arena/events.go
package arena

import (
	"time"

	"github.com/google/uuid"
)

// Sink receives outbound gameplay events from a running match. The protocol
// layer implements it on top of the websocket write pumps; tests substitute a
// recording mock. Implementations must not block: a slow consumer is the
// consumer's problem, never the tick loop's.
type Sink interface {
	// Broadcast delivers ev to every participant and spectator of the match.
	Broadcast(ev interface{})
	// ToPlayer delivers ev to the single client bound to playerID.
	ToPlayer(playerID uuid.UUID, ev interface{})
}

// NopSink discards everything. Used for CPU-only matches with no audience.
type NopSink struct{}

func (NopSink) Broadcast(interface{})           {}
func (NopSink) ToPlayer(uuid.UUID, interface{}) {}

// PaddleState is the per-side slice of a Snapshot.
type PaddleState struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	Score    int     `json:"score"`
	Inverted bool    `json:"inverted"`
}

// SlotView describes one power-up slot in a Snapshot.
type SlotView struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	State string `json:"state"`
}

// Snapshot is the authoritative per-tick state broadcast as "game_state".
type Snapshot struct {
	Type      string         `json:"type"`
	MatchID   uuid.UUID      `json:"match_id"`
	Tick      uint64         `json:"tick"`
	Timestamp int64          `json:"ts"`
	BallX     float64        `json:"ball_x"`
	BallY     float64        `json:"ball_y"`
	Serving   bool           `json:"serving"`
	Paused    bool           `json:"paused"`
	Paddles   [2]PaddleState `json:"paddles"`
	Slots     [2][]SlotView  `json:"slots"`
	Rally     int            `json:"rally"`
}

// GameStartedEvent announces the transition into the running state.
type GameStartedEvent struct {
	Type    string    `json:"type"`
	MatchID uuid.UUID `json:"match_id"`
	Players [2]string `json:"players"`
}

// SideAssignmentEvent tells one client which paddle it controls.
type SideAssignmentEvent struct {
	Type    string    `json:"type"`
	MatchID uuid.UUID `json:"match_id"`
	Side    int       `json:"side"`
}

// PowerupEvent reports an activation or deactivation.
type PowerupEvent struct {
	Type    string    `json:"type"`
	MatchID uuid.UUID `json:"match_id"`
	Side    int       `json:"side"`
	Slot    int       `json:"slot"`
	Powerup string    `json:"powerup"`
}

// GameEndedEvent reports the final outcome of a match.
type GameEndedEvent struct {
	Type       string    `json:"type"`
	MatchID    uuid.UUID `json:"match_id"`
	WinnerSide int       `json:"winner_side"`
	WinnerName string    `json:"winner_name"`
	Score      [2]int    `json:"score"`
	Forfeit    bool      `json:"forfeit"`
}

// ErrorEvent is the generic failure reply.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newSnapshot(m *Match) Snapshot {
	s := Snapshot{
		Type:      "game_state",
		MatchID:   m.ID,
		Tick:      m.TickCount,
		Timestamp: time.Now().UnixMilli(),
		BallX:     m.Ball.Rect.X,
		BallY:     m.Ball.Rect.Y,
		Serving:   m.Ball.Serving(),
		Paused:    m.Paused,
		Rally:     m.Rally,
	}
	for i, p := range m.Paddles {
		s.Paddles[i] = PaddleState{
			X:        p.Rect.X,
			Y:        p.Rect.Y,
			W:        p.Rect.W,
			Score:    p.Score,
			Inverted: p.Inverted,
		}
		for _, slot := range p.Slots {
			s.Slots[i] = append(s.Slots[i], SlotView{
				Index: slot.Index,
				Type:  slot.Type.String(),
				State: slot.State.String(),
			})
		}
	}
	return s
}
