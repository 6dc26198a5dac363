// internal/session/tournament.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/arena"
	"github.com/volleyhq/volley/internal/cache"
	"github.com/volleyhq/volley/internal/history"
	"github.com/volleyhq/volley/internal/models"
)

// TournamentRoundEvent announces the pairings of a round about to play.
type TournamentRoundEvent struct {
	Type      string      `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`
	Round     int         `json:"round"`
	Pairings  [][2]string `json:"pairings"`
}

// TournamentEndedEvent announces the champion.
type TournamentEndedEvent struct {
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	Champion  string    `json:"champion"`
}

// tournament runs a single-elimination bracket. Local tournaments play one
// match at a time on a single connection; remote tournaments seat one
// connection per player, run each round's matches concurrently, and may
// start short-handed after the wait window by filling with CPU players.
type tournament struct {
	base

	root   *BracketNode
	rounds map[int][]*BracketNode
	maxRnd int

	// active maps a player to the bracket node it is currently playing.
	active map[uuid.UUID]*BracketNode

	waitWindow time.Duration
	waitTimer  *time.Timer
}

func newTournament(mode Mode, capacity int, cfg *arena.Config, rec history.Recorder,
	waitWindow time.Duration, onEnd func(Session)) (*tournament, error) {
	root, rounds, err := NewBracket(capacity)
	if err != nil {
		return nil, err
	}
	s := &tournament{
		base:       newBase(mode, capacity, cfg, rec),
		root:       root,
		rounds:     rounds,
		maxRnd:     root.Round,
		active:     make(map[uuid.UUID]*BracketNode),
		waitWindow: waitWindow,
	}
	s.onEnd = onEnd
	s.self = s
	return s, nil
}

func (s *tournament) AddClient(c *models.Client, names []string) error {
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

	if s.mode == ModeLocalTournament {
		// The one connection brings the whole roster; short rosters are
		// padded with CPU players.
		for i := 0; i < s.capacity; i++ {
			if i < len(names) && names[i] != "" {
				s.addHumanLocked(c, names[i])
			} else if i == 0 {
				s.addHumanLocked(c, c.Username)
			} else {
				s.players = append(s.players, arena.NewCPUPlayer(i))
			}
		}
	} else {
		name := c.Username
		if len(names) > 0 && names[0] != "" {
			name = names[0]
		}
		s.addHumanLocked(c, name)
		if len(s.clients) == 1 && s.waitWindow > 0 {
			s.waitTimer = time.AfterFunc(s.waitWindow, s.waitExpired)
		}
		if s.fullLocked() && s.waitTimer != nil {
			s.waitTimer.Stop()
			s.waitTimer = nil
		}
	}

	s.broadcastLobbyLocked()
	log.Infof("session %s (%s): client %s joined (%d/%d players)",
		s.id, s.mode, c.ID, len(s.players), s.capacity)
	return nil
}

// addHumanLocked appends a human player bound to c. Assumes mu is held.
func (s *tournament) addHumanLocked(c *models.Client, name string) {
	p := &arena.Player{
		ID:       uuid.New(),
		ClientID: c.ID,
		Name:     name,
		Side:     len(s.players),
	}
	s.players = append(s.players, p)
	s.playerClient[p.ID] = c.ID
}

func (s *tournament) MarkReady(clientID uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.clients[clientID]; !ok || s.state != StateWaiting {
		s.mu.Unlock()
		return
	}
	s.ready[clientID] = true
	start := s.fullLocked() && s.allReadyLocked() && len(s.players) == s.capacity
	if start {
		s.startLocked()
	}
	s.mu.Unlock()

	if start {
		go s.runRounds()
	}
}

// waitExpired fires when the join window for a remote tournament closes.
// The bracket is padded with CPU players and the rounds begin with whoever
// showed up.
func (s *tournament) waitExpired() {
	s.mu.Lock()
	if s.state != StateWaiting || len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}
	for len(s.players) < s.capacity {
		s.players = append(s.players, arena.NewCPUPlayer(len(s.players)))
	}
	log.Infof("session %s: wait window closed, starting with %d clients and CPU fill",
		s.id, len(s.clients))
	s.startLocked()
	s.mu.Unlock()

	go s.runRounds()
}

// startLocked seeds the bracket and flips to RUNNING. Assumes mu is held.
func (s *tournament) startLocked() {
	if s.waitTimer != nil {
		s.waitTimer.Stop()
		s.waitTimer = nil
	}
	SeedBracket(s.rounds, s.players)
	s.state = StateRunning
}

// runRounds plays the bracket to completion: local tournaments play each
// round's matches back to back, remote tournaments fan a round out and join
// it before promoting.
func (s *tournament) runRounds() {
	concurrent := s.mode == ModeRemoteTournament
	for round := 1; round <= s.maxRnd; round++ {
		s.mu.Lock()
		nodes := s.rounds[round]
		ended := s.state == StateEnded
		s.mu.Unlock()
		if ended {
			return
		}

		s.announceRound(round, nodes)
		if concurrent {
			var wg sync.WaitGroup
			for _, n := range nodes {
				wg.Add(1)
				go func(n *BracketNode) {
					defer wg.Done()
					s.playNode(n)
				}(n)
			}
			wg.Wait()
		} else {
			for _, n := range nodes {
				if !s.playNode(n) {
					return
				}
			}
		}
	}

	s.mu.Lock()
	champion := s.root.Winner
	s.mu.Unlock()
	if champion != nil {
		log.Infof("session %s: tournament won by %s", s.id, champion.Name)
		s.Broadcast(TournamentEndedEvent{
			Type:      "tournament_ended",
			SessionID: s.id,
			Champion:  champion.Name,
		})
		s.publishEvent(uuid.Nil, "tournament_ended", map[string]interface{}{
			"champion": champion.Name,
		})
	}
	s.endSession()
}

func (s *tournament) announceRound(round int, nodes []*BracketNode) {
	ev := TournamentRoundEvent{
		Type:      "tournament_round",
		SessionID: s.id,
		Round:     round,
	}
	s.mu.Lock()
	for _, n := range nodes {
		var pair [2]string
		for i, p := range n.Players {
			if p != nil {
				pair[i] = p.Name
			}
		}
		ev.Pairings = append(ev.Pairings, pair)
	}
	s.mu.Unlock()
	s.Broadcast(ev)
}

// playNode runs one bracket match to completion and promotes the winner.
// Returns false when the session ended underneath it.
func (s *tournament) playNode(n *BracketNode) bool {
	s.mu.Lock()
	if s.state == StateEnded || n.Players[0] == nil || n.Players[1] == nil {
		s.mu.Unlock()
		return false
	}
	m := arena.NewMatch([2]*arena.Player{n.Players[0], n.Players[1]}, s.cfg, s)
	n.Match = m
	s.active[n.Players[0].ID] = n
	s.active[n.Players[1].ID] = n
	done := make(chan *arena.Player, 1)
	m.OnEnd = func(_ *arena.Match, w *arena.Player) { done <- w }
	s.mu.Unlock()

	s.recordNodeMatch(n, m)
	m.Start(s.ctx)

	var winner *arena.Player
	select {
	case winner = <-done:
	case <-s.ctx.Done():
		return false
	}

	s.mu.Lock()
	delete(s.active, n.Players[0].ID)
	delete(s.active, n.Players[1].ID)
	if winner == nil {
		// Aborted match; advance somebody so the bracket stays sound.
		winner = n.Players[0]
	}
	n.Promote(winner)
	s.mu.Unlock()

	s.recordResult(m, winner)
	score := m.Score()
	s.publishEvent(m.ID, "match_ended", map[string]interface{}{
		"round":  n.Round,
		"winner": winner.Name,
		"score":  []int{score[0], score[1]},
	})
	return true
}

// recordNodeMatch registers one bracket match with the recorder.
func (s *tournament) recordNodeMatch(n *BracketNode, m *arena.Match) {
	p0, p1 := n.Players[0], n.Players[1]
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rec.RegisterNewGame(ctx, m.ID, s.mode.String(), p0.ClientID); err != nil {
			logRecorderErr("register game", m.ID, err)
			return
		}
		if err := s.rec.AddSecondPlayer(ctx, m.ID, p1.ClientID); err != nil {
			logRecorderErr("add second player", m.ID, err)
		}
		if err := s.rec.RecordStartTime(ctx, m.ID); err != nil {
			logRecorderErr("record start", m.ID, err)
		}
	}()
}

func (s *tournament) publishEvent(matchID uuid.UUID, kind string, payload map[string]interface{}) {
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
			log.Warnf("journal: publish %s for session %s failed: %v", kind, s.id, err)
		}
	}()
}

// matchFor resolves the running match a client may act on, plus whether it
// may drive the given side of it.
func (s *tournament) matchFor(clientID uuid.UUID, side int) *arena.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; !ok || side < 0 || side > 1 {
		return nil
	}
	if s.mode == ModeLocalTournament {
		// The local connection drives every human side of whichever match
		// is on the table.
		for _, n := range s.active {
			if n.Match != nil && !n.Players[side].IsCPU {
				return n.Match
			}
		}
		return nil
	}
	for pid, n := range s.active {
		if s.playerClient[pid] != clientID || n.Match == nil {
			continue
		}
		if n.Match.SideOf(pid) == side {
			return n.Match
		}
	}
	return nil
}

func (s *tournament) HandleInput(clientID uuid.UUID, side int, dir float64) {
	if m := s.matchFor(clientID, side); m != nil {
		m.QueueInput(side, dir)
	}
}

func (s *tournament) ActivatePowerup(clientID uuid.UUID, side, slot int) {
	if m := s.matchFor(clientID, side); m != nil {
		m.ActivatePowerup(side, slot)
	}
}

func (s *tournament) Pause(clientID uuid.UUID) {
	if m := s.anyMatchOf(clientID); m != nil {
		m.Pause()
	}
}

func (s *tournament) Resume(clientID uuid.UUID) {
	if m := s.anyMatchOf(clientID); m != nil {
		m.Resume()
	}
}

// anyMatchOf finds the match the client is currently involved in, on either
// side.
func (s *tournament) anyMatchOf(clientID uuid.UUID) *arena.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return nil
	}
	if s.mode == ModeLocalTournament {
		for _, n := range s.active {
			if n.Match != nil {
				return n.Match
			}
		}
		return nil
	}
	for pid, n := range s.active {
		if s.playerClient[pid] == clientID && n.Match != nil {
			return n.Match
		}
	}
	return nil
}

// Quit forfeits the client's current match. A local tournament loses its
// only connection and ends; a remote tournament hands the seat to a CPU and
// plays on until no connections remain.
func (s *tournament) Quit(clientID uuid.UUID) {
	if s.mode == ModeLocalTournament {
		s.mu.Lock()
		_, ok := s.clients[clientID]
		s.mu.Unlock()
		if ok {
			s.endSession()
		}
		return
	}

	s.mu.Lock()
	if _, ok := s.clients[clientID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, clientID)
	delete(s.ready, clientID)

	var forfeit *arena.Match
	forfeitSide := -1
	for _, p := range s.players {
		if p.ClientID != clientID || p.IsCPU {
			continue
		}
		p.IsCPU = true // CPU plays the seat from here on
		if n, ok := s.active[p.ID]; ok && n.Match != nil {
			forfeit = n.Match
			forfeitSide = 1 - n.Match.SideOf(p.ID)
		}
	}
	empty := len(s.clients) == 0
	s.mu.Unlock()

	if forfeit != nil && forfeitSide >= 0 {
		forfeit.ForceWinner(forfeitSide)
	}
	if empty {
		s.endSession()
	}
}

// ClientGone applies the quit rules to an expired disconnect.
func (s *tournament) ClientGone(clientID uuid.UUID) {
	s.Quit(clientID)
}

func (s *tournament) End() {
	s.mu.Lock()
	if s.waitTimer != nil {
		s.waitTimer.Stop()
		s.waitTimer = nil
	}
	s.mu.Unlock()
	s.endSession()
}
