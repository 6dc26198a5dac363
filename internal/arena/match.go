// internal/arena/match.go
package arena

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// inputCmd is one queued movement command from the protocol layer.
type inputCmd struct {
	side int
	dir  float64
}

// pendingAction is a scheduled callback drained by the tick loop, so timed
// effects expire deterministically relative to the simulation rather than on
// wall-clock goroutine timers racing the tick.
type pendingAction struct {
	remaining float64
	fn        func()
}

// Match runs one head-to-head game: two paddles, one ball, one power-up
// engine, one goroutine. All mutable state is guarded by Mu; the tick loop
// and the protocol-facing mutators both take it. Snapshots and events leave
// through the Sink, which never blocks.
type Match struct {
	ID uuid.UUID

	Mu sync.Mutex

	Players [2]*Player
	Paddles [2]*Paddle
	CPUs    [2]*CPUPaddle
	Ball    *Ball
	Engine  *Engine

	Running   bool
	Paused    bool
	Winner    *Player
	Forfeited bool
	Rally     int
	TickCount uint64

	inputs       []inputCmd
	moveDir      [2]float64
	pending      []*pendingAction
	forcedWinner int

	cfg  *Config
	rng  *rand.Rand
	sink Sink

	// OnEnd fires exactly once after the match stops, outside the lock.
	OnEnd func(m *Match, winner *Player)

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMatch builds a match between the two players. Sides follow array
// position. CPU players get a CPU controller for their paddle.
func NewMatch(players [2]*Player, cfg *Config, sink Sink) *Match {
	return newMatch(players, cfg, sink, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newMatch(players [2]*Player, cfg *Config, sink Sink, rng *rand.Rand) *Match {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Match{
		ID:           uuid.New(),
		Players:      players,
		cfg:          cfg,
		rng:          rng,
		sink:         sink,
		forcedWinner: -1,
		stop:         make(chan struct{}),
	}
	for side := 0; side < 2; side++ {
		players[side].Side = side
		m.Paddles[side] = NewPaddle(side, cfg)
		if players[side].IsCPU {
			m.CPUs[side] = NewCPUPaddle(m.Paddles[side], cfg, rng)
		}
	}
	m.Ball = NewBall(cfg, rng)
	m.Engine = NewEngine(cfg, m.Ball, m.Paddles, rng)
	return m
}

// Start marks the match running, announces it and launches the tick loop.
func (m *Match) Start(ctx context.Context) {
	m.Mu.Lock()
	if m.Running {
		m.Mu.Unlock()
		return
	}
	m.Running = true
	m.Mu.Unlock()

	for side, p := range m.Players {
		if !p.IsCPU {
			m.sink.ToPlayer(p.ID, SideAssignmentEvent{
				Type:    "side_assignment",
				MatchID: m.ID,
				Side:    side,
			})
		}
	}
	m.sink.Broadcast(GameStartedEvent{
		Type:    "game_started",
		MatchID: m.ID,
		Players: [2]string{m.Players[0].Name, m.Players[1].Name},
	})

	go m.run(ctx)
}

func (m *Match) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Mu.Lock()
			m.Running = false
			m.Mu.Unlock()
			m.finish()
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if m.Step(m.cfg.Dt()) {
				m.finish()
				return
			}
		}
	}
}

// Step advances the simulation by one fixed timestep and reports whether
// the match is over. The tick loop calls it on a ticker; tests call it
// directly for deterministic runs. A panic inside a tick is recovered and
// ends the match gracefully instead of taking the process down.
func (m *Match) Step(dt float64) (done bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("match %s: tick panic: %v", m.ID, r)
			m.Running = false
			m.sink.Broadcast(ErrorEvent{Type: "error", Message: "internal error, match aborted"})
			done = true
		}
	}()

	if !m.Running {
		return true
	}
	if m.forcedWinner >= 0 {
		m.endLocked(m.forcedWinner, true)
		return true
	}

	m.TickCount++
	m.drainInputsLocked()
	m.drainScheduleLocked(dt)

	if !m.Paused {
		for side := 0; side < 2; side++ {
			if m.CPUs[side] != nil {
				m.CPUs[side].Update(dt, m.Ball)
			} else {
				m.Paddles[side].Move(dt, m.moveDir[side])
			}
		}
		scorer, hit := m.Ball.Update(dt, m.Paddles)
		if hit {
			m.Rally++
		}
		if scorer >= 0 {
			m.Paddles[scorer].Score++
			m.Rally = 0
			if m.Paddles[scorer].Score >= m.cfg.WinScore {
				m.endLocked(scorer, false)
				return true
			}
		}
	}

	m.sink.Broadcast(newSnapshot(m))
	return false
}

// endLocked records the outcome and broadcasts game_ended. Assumes the lock
// is held; OnEnd is deferred to finish so it runs outside it.
func (m *Match) endLocked(winnerSide int, forfeit bool) {
	m.Running = false
	m.Winner = m.Players[winnerSide]
	m.Forfeited = forfeit
	m.sink.Broadcast(GameEndedEvent{
		Type:       "game_ended",
		MatchID:    m.ID,
		WinnerSide: winnerSide,
		WinnerName: m.Winner.Name,
		Score:      [2]int{m.Paddles[0].Score, m.Paddles[1].Score},
		Forfeit:    forfeit,
	})
	log.Infof("match %s: ended, winner=%s forfeit=%v score=%d-%d",
		m.ID, m.Winner.Name, forfeit, m.Paddles[0].Score, m.Paddles[1].Score)
}

// finish stops the loop and fires OnEnd exactly once, outside the lock.
func (m *Match) finish() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.Mu.Lock()
		winner := m.Winner
		cb := m.OnEnd
		m.Mu.Unlock()
		if cb != nil {
			cb(m, winner)
		}
	})
}

// QueueInput records a movement command for the next tick. Unknown sides
// and finished matches are silent no-ops.
func (m *Match) QueueInput(side int, dir float64) {
	if side < 0 || side > 1 {
		return
	}
	if dir > 0 {
		dir = 1
	} else if dir < 0 {
		dir = -1
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if !m.Running {
		return
	}
	m.inputs = append(m.inputs, inputCmd{side: side, dir: dir})
}

func (m *Match) drainInputsLocked() {
	for _, in := range m.inputs {
		m.moveDir[in.side] = in.dir
	}
	m.inputs = m.inputs[:0]
}

// ActivatePowerup fires a side's power-up slot. Invalid indices and slots
// that are not UNUSED are silent no-ops per the race rules. On success the
// deactivation is scheduled on the tick drain and both transitions are
// broadcast.
func (m *Match) ActivatePowerup(side, index int) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if !m.Running {
		return
	}
	slot, dur, ok := m.Engine.Activate(side, index)
	if !ok {
		return
	}
	m.sink.Broadcast(PowerupEvent{
		Type:    "powerup_activated",
		MatchID: m.ID,
		Side:    side,
		Slot:    index,
		Powerup: slot.Type.String(),
	})
	m.scheduleLocked(dur.Seconds(), func() {
		m.Engine.Deactivate(slot)
		m.sink.Broadcast(PowerupEvent{
			Type:    "powerup_deactivated",
			MatchID: m.ID,
			Side:    side,
			Slot:    index,
			Powerup: slot.Type.String(),
		})
	})
}

// scheduleLocked queues fn to run after delay seconds of simulated time.
// Assumes the lock is held; fn runs with the lock held on a later tick.
func (m *Match) scheduleLocked(delay float64, fn func()) {
	m.pending = append(m.pending, &pendingAction{remaining: delay, fn: fn})
}

func (m *Match) drainScheduleLocked(dt float64) {
	var keep []*pendingAction
	var due []*pendingAction
	for _, a := range m.pending {
		a.remaining -= dt
		if a.remaining <= 0 {
			due = append(due, a)
		} else {
			keep = append(keep, a)
		}
	}
	m.pending = keep
	for _, a := range due {
		a.fn()
	}
}

// Pause freezes the simulation until Resume. Snapshots keep flowing so
// clients can show the paused state.
func (m *Match) Pause() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Running {
		m.Paused = true
	}
}

// Resume lifts a pause.
func (m *Match) Resume() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Paused = false
}

// ForceWinner awards the match to the given side on the next tick. Used for
// quit forfeits and disconnects. No-op once the match has ended.
func (m *Match) ForceWinner(side int) {
	if side < 0 || side > 1 {
		return
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if !m.Running {
		return
	}
	m.forcedWinner = side
}

// Score returns the current score by side.
func (m *Match) Score() [2]int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return [2]int{m.Paddles[0].Score, m.Paddles[1].Score}
}

// SideOf returns the side a player plays on, or -1 if the player is not in
// this match.
func (m *Match) SideOf(playerID uuid.UUID) int {
	for side, p := range m.Players {
		if p.ID == playerID {
			return side
		}
	}
	return -1
}
