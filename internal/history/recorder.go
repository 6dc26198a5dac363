// internal/history/recorder.go
package history

import (
	"context"

	"github.com/google/uuid"
)

// Recorder is the persisted-state collaborator for match history. The
// session layer drives it through the match lifecycle; the database package
// provides the Postgres implementation and Nop serves tests and setups that
// run without persistence. All calls are best effort from the caller's point
// of view: a recording failure is logged, never propagated into gameplay.
type Recorder interface {
	// RegisterNewGame inserts the match row with its first player.
	RegisterNewGame(ctx context.Context, matchID uuid.UUID, mode string, firstPlayer uuid.UUID) error
	// AddSecondPlayer binds the opposing player once known.
	AddSecondPlayer(ctx context.Context, matchID uuid.UUID, secondPlayer uuid.UUID) error
	// RecordStartTime stamps the moment simulation began.
	RecordStartTime(ctx context.Context, matchID uuid.UUID) error
	// RecordResult stores the winner and final score.
	RecordResult(ctx context.Context, matchID uuid.UUID, winner uuid.UUID, score [2]int) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RegisterNewGame(context.Context, uuid.UUID, string, uuid.UUID) error {
	return nil
}

func (Nop) AddSecondPlayer(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (Nop) RecordStartTime(context.Context, uuid.UUID) error {
	return nil
}

func (Nop) RecordResult(context.Context, uuid.UUID, uuid.UUID, [2]int) error {
	return nil
}
