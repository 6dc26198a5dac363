// internal/arena/match_test.go
package arena

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSink records every event a match emits so scenarios can assert on the
// outbound stream.
type mockSink struct {
	mu        sync.Mutex
	allEvents []interface{}
	byPlayer  map[uuid.UUID][]interface{}
}

func newMockSink() *mockSink {
	return &mockSink{byPlayer: make(map[uuid.UUID][]interface{})}
}

func (s *mockSink) Broadcast(ev interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allEvents = append(s.allEvents, ev)
}

func (s *mockSink) ToPlayer(id uuid.UUID, ev interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPlayer[id] = append(s.byPlayer[id], ev)
}

func (s *mockSink) powerupEvents(kind string) []PowerupEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PowerupEvent
	for _, ev := range s.allEvents {
		if pe, ok := ev.(PowerupEvent); ok && pe.Type == kind {
			out = append(out, pe)
		}
	}
	return out
}

func (s *mockSink) lastEnded() (GameEndedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.allEvents) - 1; i >= 0; i-- {
		if ge, ok := s.allEvents[i].(GameEndedEvent); ok {
			return ge, true
		}
	}
	return GameEndedEvent{}, false
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.WinScore = 3
	cfg.ServeDelay = 0
	cfg.EffectDuration = 100 * time.Millisecond
	cfg.FreezeDuration = 50 * time.Millisecond
	return cfg
}

// setupTestMatch wires a deterministic two-human match that tests step by
// hand instead of running the ticker goroutine.
func setupTestMatch(t *testing.T, cfg *Config) (*Match, *mockSink) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	sink := newMockSink()
	players := [2]*Player{
		{ID: uuid.New(), Name: "alice"},
		{ID: uuid.New(), Name: "bob"},
	}
	m := newMatch(players, cfg, sink, rand.New(rand.NewSource(7)))
	m.Running = true
	return m, sink
}

func TestStepBroadcastsSnapshotEveryTick(t *testing.T) {
	m, sink := setupTestMatch(t, nil)

	require.False(t, m.Step(m.cfg.Dt()))
	require.False(t, m.Step(m.cfg.Dt()))

	var snaps []Snapshot
	for _, ev := range sink.allEvents {
		if s, ok := ev.(Snapshot); ok {
			snaps = append(snaps, s)
		}
	}
	require.Len(t, snaps, 2)
	assert.Equal(t, uint64(1), snaps[0].Tick)
	assert.Equal(t, uint64(2), snaps[1].Tick)
	assert.Equal(t, "game_state", snaps[0].Type)
}

func TestQueuedInputMovesPaddleOnNextTick(t *testing.T) {
	m, _ := setupTestMatch(t, nil)
	startX := m.Paddles[0].Rect.X

	m.QueueInput(0, 1)
	m.Step(m.cfg.Dt())
	assert.Greater(t, m.Paddles[0].Rect.X, startX)

	// Direction persists until countermanded.
	afterOne := m.Paddles[0].Rect.X
	m.Step(m.cfg.Dt())
	assert.Greater(t, m.Paddles[0].Rect.X, afterOne)

	m.QueueInput(0, 0)
	m.Step(m.cfg.Dt())
	stopped := m.Paddles[0].Rect.X
	m.Step(m.cfg.Dt())
	assert.Equal(t, stopped, m.Paddles[0].Rect.X)
}

func TestForceWinnerEndsMatchAsForfeit(t *testing.T) {
	m, sink := setupTestMatch(t, nil)
	var endedWith *Player
	m.OnEnd = func(_ *Match, w *Player) { endedWith = w }

	m.ForceWinner(1)
	require.True(t, m.Step(m.cfg.Dt()))
	m.finish()

	assert.False(t, m.Running)
	assert.True(t, m.Forfeited)
	require.NotNil(t, m.Winner)
	assert.Equal(t, "bob", m.Winner.Name)
	assert.Equal(t, m.Players[1], endedWith)

	ge, ok := sink.lastEnded()
	require.True(t, ok)
	assert.True(t, ge.Forfeit)
	assert.Equal(t, 1, ge.WinnerSide)
}

func TestScoreThresholdEndsMatch(t *testing.T) {
	m, sink := setupTestMatch(t, nil)
	m.Paddles[0].Score = m.cfg.WinScore - 1

	// Aim the live ball straight at side 1's goal line.
	m.Ball.Modifier = 1
	m.Ball.serveLeft = 0
	m.Ball.Rect.SetCenterX(0)
	m.Ball.Rect.SetCenterY(FieldHalfLength - 0.1)
	m.Ball.DirX = 0
	m.Ball.DirY = 1

	require.True(t, m.Step(m.cfg.Dt()))
	require.NotNil(t, m.Winner)
	assert.Equal(t, "alice", m.Winner.Name)
	assert.Equal(t, m.cfg.WinScore, m.Paddles[0].Score)

	ge, ok := sink.lastEnded()
	require.True(t, ok)
	assert.False(t, ge.Forfeit)
	assert.Equal(t, [2]int{m.cfg.WinScore, 0}, ge.Score)
}

func TestPowerupDeactivatesViaTickScheduler(t *testing.T) {
	m, sink := setupTestMatch(t, nil)
	m.Engine.slots[0][0].Type = SpeedUp
	base := m.Paddles[0].BaseSpeed

	m.ActivatePowerup(0, 0)
	assert.InDelta(t, base*m.cfg.SpeedUpFactor, m.Paddles[0].Speed, 1e-9)
	require.Len(t, sink.powerupEvents("powerup_activated"), 1)

	// EffectDuration is 100ms; 30Hz ticks cross it on the fourth step.
	for i := 0; i < 4; i++ {
		m.Step(m.cfg.Dt())
	}
	assert.InDelta(t, base, m.Paddles[0].Speed, 1e-9)
	assert.Equal(t, SlotSpent, m.Engine.slots[0][0].State)
	require.Len(t, sink.powerupEvents("powerup_deactivated"), 1)
}

func TestActivateSpentSlotIsSilentNoop(t *testing.T) {
	m, sink := setupTestMatch(t, nil)
	m.Engine.slots[0][0].Type = SpeedUp

	m.ActivatePowerup(0, 0)
	for i := 0; i < 4; i++ {
		m.Step(m.cfg.Dt())
	}
	require.Equal(t, SlotSpent, m.Engine.slots[0][0].State)

	m.ActivatePowerup(0, 0)
	assert.Len(t, sink.powerupEvents("powerup_activated"), 1, "spent slot must not re-fire")
}

func TestPauseFreezesSimulationButKeepsSnapshots(t *testing.T) {
	m, sink := setupTestMatch(t, nil)
	m.QueueInput(0, 1)
	m.Step(m.cfg.Dt())
	x := m.Paddles[0].Rect.X
	ballY := m.Ball.Rect.Y

	m.Pause()
	before := len(sink.allEvents)
	m.Step(m.cfg.Dt())
	assert.Equal(t, x, m.Paddles[0].Rect.X)
	assert.Equal(t, ballY, m.Ball.Rect.Y)
	assert.Greater(t, len(sink.allEvents), before, "paused matches still stream state")

	m.Resume()
	m.Step(m.cfg.Dt())
	assert.NotEqual(t, ballY, m.Ball.Rect.Y)
}

func TestTickPanicIsRecoveredAndEndsMatch(t *testing.T) {
	m, sink := setupTestMatch(t, nil)
	m.Mu.Lock()
	m.scheduleLocked(0, func() { panic("boom") })
	m.Mu.Unlock()

	require.NotPanics(t, func() {
		assert.True(t, m.Step(m.cfg.Dt()))
	})
	assert.False(t, m.Running)

	var sawErr bool
	for _, ev := range sink.allEvents {
		if e, ok := ev.(ErrorEvent); ok && e.Type == "error" {
			sawErr = true
		}
	}
	assert.True(t, sawErr, "abort must be announced to clients")
}

func TestCPUOpponentPlaysWithoutInput(t *testing.T) {
	cfg := testConfig()
	sink := newMockSink()
	players := [2]*Player{
		{ID: uuid.New(), Name: "alice"},
		NewCPUPlayer(1),
	}
	m := newMatch(players, cfg, sink, rand.New(rand.NewSource(7)))
	m.Running = true
	require.NotNil(t, m.CPUs[1])
	require.Nil(t, m.CPUs[0])

	// Send the ball at the CPU's corner and let it react.
	m.Ball.Modifier = 1
	m.Ball.Rect.SetCenterX(-8)
	m.Ball.Rect.SetCenterY(0)
	m.Ball.DirX = -0.2
	m.Ball.DirY = 0.98

	start := m.Paddles[1].Rect.X
	for i := 0; i < 20; i++ {
		m.Step(cfg.Dt())
	}
	assert.NotEqual(t, start, m.Paddles[1].Rect.X, "CPU paddle should chase the ball")
}
