// internal/session/oneoff.go
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/arena"
	"github.com/volleyhq/volley/internal/cache"
	"github.com/volleyhq/volley/internal/history"
	"github.com/volleyhq/volley/internal/models"
)

func logRecorderErr(op string, matchID uuid.UUID, err error) {
	log.Warnf("history: %s for match %s failed: %v", op, matchID, err)
}

// oneOff runs a single match: single-player vs CPU, local two-player on one
// connection, or remote two-player.
type oneOff struct {
	base
	match *arena.Match
}

func newOneOff(mode Mode, cfg *arena.Config, rec history.Recorder, onEnd func(Session)) *oneOff {
	s := &oneOff{base: newBase(mode, 2, cfg, rec)}
	s.onEnd = onEnd
	s.self = s
	return s
}

// AddClient seats the connection and builds its players. Local modes fill
// both sides from one connection; single player gets a CPU opponent.
func (s *oneOff) AddClient(c *models.Client, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaiting {
		return ErrSessionStarted
	}
	if s.fullLocked() {
		return ErrSessionFull
	}
	if _, ok := s.clients[c.ID]; ok {
		return ErrAlreadyInSession
	}
	s.clients[c.ID] = c

	name := func(i int, fallback string) string {
		if i < len(names) && names[i] != "" {
			return names[i]
		}
		return fallback
	}

	switch s.mode {
	case ModeSingle:
		s.addPlayerLocked(c, name(0, c.Username))
		cpu := arena.NewCPUPlayer(1)
		s.players = append(s.players, cpu)
	case ModeLocal2P:
		s.addPlayerLocked(c, name(0, c.Username))
		s.addPlayerLocked(c, name(1, "Player 2"))
	default: // ModeRemote2P, one player per connection
		s.addPlayerLocked(c, name(0, c.Username))
	}

	s.recordJoinLocked(c)
	s.broadcastLobbyLocked()
	log.Infof("session %s (%s): client %s joined (%d/%d players)",
		s.id, s.mode, c.ID, len(s.players), s.capacity)
	return nil
}

// addPlayerLocked appends a human player bound to c. Assumes mu is held.
func (s *oneOff) addPlayerLocked(c *models.Client, name string) {
	p := &arena.Player{
		ID:       uuid.New(),
		ClientID: c.ID,
		Name:     name,
		Side:     len(s.players),
	}
	s.players = append(s.players, p)
	s.playerClient[p.ID] = c.ID
}

// recordJoinLocked reports the join to the recorder off the hot path. The
// session id doubles as the match id for recording, since a one-off session
// is exactly one match.
func (s *oneOff) recordJoinLocked(c *models.Client) {
	first := len(s.clients) == 1
	id, mode, cid := s.id, s.mode.String(), c.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if first {
			err = s.rec.RegisterNewGame(ctx, id, mode, cid)
		} else {
			err = s.rec.AddSecondPlayer(ctx, id, cid)
		}
		if err != nil {
			logRecorderErr("register join", id, err)
		}
	}()
}

// MarkReady flags the client; once the session is full and unanimous the
// match starts.
func (s *oneOff) MarkReady(clientID uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.clients[clientID]; !ok || s.state != StateWaiting {
		s.mu.Unlock()
		return
	}
	s.ready[clientID] = true
	var m *arena.Match
	if s.fullLocked() && s.allReadyLocked() && len(s.players) == 2 {
		s.state = StateRunning
		m = arena.NewMatch([2]*arena.Player{s.players[0], s.players[1]}, s.cfg, s)
		m.OnEnd = s.matchEnded
		s.match = m
	}
	s.mu.Unlock()

	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rec.RecordStartTime(ctx, s.id); err != nil {
			logRecorderErr("record start", s.id, err)
		}
	}()
	s.publishEvent(m.ID, "match_started", nil)
	m.Start(s.ctx)
}

func (s *oneOff) matchEnded(m *arena.Match, winner *arena.Player) {
	if winner != nil {
		log.Infof("session %s: match %s won by %s", s.id, m.ID, winner.Name)
		s.recordResult(m, winner)
		score := m.Score()
		s.publishEvent(m.ID, "match_ended", map[string]interface{}{
			"winner": winner.Name,
			"score":  []int{score[0], score[1]},
		})
	}
	s.endSession()
}

// publishEvent mirrors the lifecycle to the historian queue. Best effort.
func (s *oneOff) publishEvent(matchID uuid.UUID, kind string, payload map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishMatchEvent(ctx, cache.MatchEventRecord{
			SessionID: s.id,
			MatchID:   matchID,
			EventType: kind,
			Payload:   payload,
			Timestamp: time.Now().UnixMilli(),
		}); err != nil {
			log.Warnf("journal: publish %s for match %s failed: %v", kind, matchID, err)
		}
	}()
}

// controlsSideLocked decides whether a client may drive the given side.
// Local modes own every side; remote clients only their own paddle.
func (s *oneOff) controlsSideLocked(clientID uuid.UUID, side int) bool {
	if side < 0 || side >= len(s.players) {
		return false
	}
	if _, ok := s.clients[clientID]; !ok {
		return false
	}
	if s.mode != ModeRemote2P {
		return !s.players[side].IsCPU
	}
	return s.players[side].ClientID == clientID
}

func (s *oneOff) HandleInput(clientID uuid.UUID, side int, dir float64) {
	s.mu.Lock()
	m := s.match
	ok := s.controlsSideLocked(clientID, side)
	s.mu.Unlock()
	if m == nil || !ok {
		return
	}
	m.QueueInput(side, dir)
}

func (s *oneOff) ActivatePowerup(clientID uuid.UUID, side, slot int) {
	s.mu.Lock()
	m := s.match
	ok := s.controlsSideLocked(clientID, side)
	s.mu.Unlock()
	if m == nil || !ok {
		return
	}
	m.ActivatePowerup(side, slot)
}

func (s *oneOff) Pause(clientID uuid.UUID) {
	s.mu.Lock()
	m := s.match
	_, seated := s.clients[clientID]
	s.mu.Unlock()
	if m != nil && seated {
		m.Pause()
	}
}

func (s *oneOff) Resume(clientID uuid.UUID) {
	s.mu.Lock()
	m := s.match
	_, seated := s.clients[clientID]
	s.mu.Unlock()
	if m != nil && seated {
		m.Resume()
	}
}

// Quit forfeits: the opponent of the quitting client wins the match. With
// every side on the quitting connection there is nobody left to award the
// match to, so the session just ends.
func (s *oneOff) Quit(clientID uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.clients[clientID]; !ok {
		s.mu.Unlock()
		return
	}
	m := s.match
	opponent := s.opponentSideLocked(clientID)
	s.mu.Unlock()

	if m == nil || opponent < 0 {
		s.endSession()
		return
	}
	m.ForceWinner(opponent)
}

// ClientGone follows the same forfeit rules as Quit: an ordinary session
// cannot outlive a lost connection.
func (s *oneOff) ClientGone(clientID uuid.UUID) {
	s.Quit(clientID)
}

// opponentSideLocked finds a side not controlled by the given client.
// Returns -1 when the client controls everything. Assumes mu is held.
func (s *oneOff) opponentSideLocked(clientID uuid.UUID) int {
	for side, p := range s.players {
		if p.IsCPU || p.ClientID != clientID {
			return side
		}
	}
	return -1
}

// End cancels the session context, which stops any running match loop.
func (s *oneOff) End() {
	s.endSession()
}
