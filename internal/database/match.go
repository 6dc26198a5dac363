// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/rating"
)

// Recorder persists match history to Postgres. It satisfies
// history.Recorder; the session layer drives it through each match's
// lifecycle. CPU participants arrive as the zero UUID and are stored as
// NULL player references.
type Recorder struct{}

func nullable(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// RegisterNewGame upserts the match row with its first player. Upsert
// rather than insert: a tournament may re-register after a retry.
func (Recorder) RegisterNewGame(ctx context.Context, matchID uuid.UUID, mode string, firstPlayer uuid.UUID) error {
	q := `INSERT INTO matches (id, mode, player1_id, created_at)
	      VALUES ($1, $2, $3, now())
	      ON CONFLICT (id) DO UPDATE SET mode=EXCLUDED.mode, player1_id=EXCLUDED.player1_id`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, matchID, mode, nullable(firstPlayer))
		return err
	})
}

// AddSecondPlayer binds the opposing player once known.
func (Recorder) AddSecondPlayer(ctx context.Context, matchID uuid.UUID, secondPlayer uuid.UUID) error {
	q := `UPDATE matches SET player2_id=$1 WHERE id=$2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, nullable(secondPlayer), matchID)
		return err
	})
}

// RecordStartTime stamps the moment simulation began.
func (Recorder) RecordStartTime(ctx context.Context, matchID uuid.UUID) error {
	q := `UPDATE matches SET started_at=now() WHERE id=$1`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, matchID)
		return err
	})
}

// RecordResult stores the outcome, then applies the rating update to both
// human players. Rating failures are logged, not returned: the result row
// is the source of truth and must not be rolled back over a rating hiccup.
func (r Recorder) RecordResult(ctx context.Context, matchID uuid.UUID, winner uuid.UUID, score [2]int) error {
	q := `UPDATE matches
	      SET winner_id=$1, score1=$2, score2=$3, ended_at=now()
	      WHERE id=$4`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, nullable(winner), score[0], score[1], matchID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to record result for match %s: %w", matchID, err)
	}

	if winner != uuid.Nil {
		if err := r.applyRatings(ctx, matchID, winner); err != nil {
			log.Warnf("rating update for match %s failed: %v", matchID, err)
		}
	}
	return nil
}

// applyRatings runs the Glicko-2 exchange between the two players of the
// match. Matches against a CPU leave ratings untouched.
func (Recorder) applyRatings(ctx context.Context, matchID, winner uuid.UUID) error {
	var p1, p2 *uuid.UUID
	q := `SELECT player1_id, player2_id FROM matches WHERE id=$1`
	if err := DB.QueryRow(ctx, q, matchID).Scan(&p1, &p2); err != nil {
		return err
	}
	if p1 == nil || p2 == nil {
		return nil
	}
	loserID := *p1
	if loserID == winner {
		loserID = *p2
	}

	winUser, err := GetUserByID(ctx, winner)
	if err != nil {
		return err
	}
	loseUser, err := GetUserByID(ctx, loserID)
	if err != nil {
		return err
	}

	w, l := rating.Update1v1(
		rating.Player{Rating: float64(winUser.Rating), RD: winUser.RD, Volatility: winUser.Volatility},
		rating.Player{Rating: float64(loseUser.Rating), RD: loseUser.RD, Volatility: loseUser.Volatility},
	)
	winUser.Rating, winUser.RD, winUser.Volatility = int(w.Rating), w.RD, w.Volatility
	loseUser.Rating, loseUser.RD, loseUser.Volatility = int(l.Rating), l.RD, l.Volatility
	winUser.Wins++
	loseUser.Losses++

	if err := SaveUserRating(ctx, winUser); err != nil {
		return err
	}
	return SaveUserRating(ctx, loseUser)
}
