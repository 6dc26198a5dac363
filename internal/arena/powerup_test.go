// internal/arena/powerup_test.go
package arena

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEngine builds an engine with hand-picked slot types so scenarios do
// not depend on the roll. types[side][i] overrides slot i of that side.
func setupEngine(t *testing.T, types [2][]PowerupType) (*Engine, *Ball, [2]*Paddle, *Config) {
	t.Helper()
	cfg := testConfig()
	rng := rand.New(rand.NewSource(11))
	paddles := testPaddles(cfg)
	ball := NewBall(cfg, rng)
	e := NewEngine(cfg, ball, paddles, rng)
	for side := 0; side < 2; side++ {
		for i, pt := range types[side] {
			e.slots[side][i].Type = pt
		}
	}
	return e, ball, paddles, cfg
}

func TestSlotLifecycleIsTerminal(t *testing.T) {
	e, _, paddles, cfg := setupEngine(t, [2][]PowerupType{{SpeedUp}, {}})
	base := paddles[0].BaseSpeed

	s, dur, ok := e.Activate(0, 0)
	require.True(t, ok)
	assert.Equal(t, cfg.EffectDuration, dur)
	assert.Equal(t, SlotActive, s.State)
	assert.InDelta(t, base*cfg.SpeedUpFactor, paddles[0].Speed, 1e-9)

	e.Deactivate(s)
	assert.Equal(t, SlotSpent, s.State)
	assert.InDelta(t, base, paddles[0].Speed, 1e-9)

	// Spent is terminal: neither reactivation nor re-deactivation acts.
	_, _, ok = e.Activate(0, 0)
	assert.False(t, ok)
	e.Deactivate(s)
	assert.Equal(t, SlotSpent, s.State)
	assert.InDelta(t, base, paddles[0].Speed, 1e-9)
}

func TestActivateWhileActiveIsNoop(t *testing.T) {
	e, _, _, _ := setupEngine(t, [2][]PowerupType{{Freeze}, {}})
	s, _, ok := e.Activate(0, 0)
	require.True(t, ok)
	require.Equal(t, SlotActive, s.State)

	_, _, ok = e.Activate(0, 0)
	assert.False(t, ok)
}

func TestOpposingSpeedEffectsCancel(t *testing.T) {
	// Side 0 boosts itself; side 1 then slows side 0's paddle. The two act
	// on the same paddle's speed, so the second cancels the first instead
	// of stacking, and is itself consumed unapplied.
	e, _, paddles, cfg := setupEngine(t, [2][]PowerupType{{SpeedUp}, {SlowOpponent}})
	base := paddles[0].BaseSpeed

	boost, _, ok := e.Activate(0, 0)
	require.True(t, ok)
	assert.InDelta(t, base*cfg.SpeedUpFactor, paddles[0].Speed, 1e-9)

	slow, dur, ok := e.Activate(1, 0)
	require.True(t, ok)
	assert.Equal(t, SlotSpent, boost.State, "existing effect is cancelled")
	assert.InDelta(t, base, paddles[0].Speed, 1e-9, "boost reverted, slow not applied")
	assert.Zero(t, dur, "consumed slot deactivates on the next drain")

	e.Deactivate(slow)
	assert.Equal(t, SlotSpent, slow.State)
	assert.InDelta(t, base, paddles[0].Speed, 1e-9, "unapplied slot reverts nothing")
}

func TestOpposingSizeEffectsCancel(t *testing.T) {
	e, _, paddles, cfg := setupEngine(t, [2][]PowerupType{{Grow}, {ShrinkOpponent}})
	baseW := paddles[0].Rect.W

	grow, _, ok := e.Activate(0, 0)
	require.True(t, ok)
	assert.InDelta(t, baseW*cfg.GrowFactor, paddles[0].Rect.W, 1e-9)

	_, dur, ok := e.Activate(1, 0)
	require.True(t, ok)
	assert.Zero(t, dur)
	assert.Equal(t, SlotSpent, grow.State)
	assert.InDelta(t, baseW, paddles[0].Rect.W, 1e-9)
}

func TestIndependentTargetsDoNotCancel(t *testing.T) {
	// Both sides boost their own paddle. Different targets, no conflict.
	e, _, paddles, cfg := setupEngine(t, [2][]PowerupType{{SpeedUp}, {SpeedUp}})

	_, _, ok := e.Activate(0, 0)
	require.True(t, ok)
	s1, dur, ok := e.Activate(1, 0)
	require.True(t, ok)
	assert.Equal(t, cfg.EffectDuration, dur)
	assert.Equal(t, SlotActive, s1.State)
	assert.InDelta(t, paddles[0].BaseSpeed*cfg.SpeedUpFactor, paddles[0].Speed, 1e-9)
	assert.InDelta(t, paddles[1].BaseSpeed*cfg.SpeedUpFactor, paddles[1].Speed, 1e-9)
}

func TestFreezePausesBallWithShortDuration(t *testing.T) {
	e, ball, _, cfg := setupEngine(t, [2][]PowerupType{{Freeze}, {}})

	s, dur, ok := e.Activate(0, 0)
	require.True(t, ok)
	assert.Equal(t, cfg.FreezeDuration, dur)
	assert.Less(t, cfg.FreezeDuration, cfg.EffectDuration)
	assert.True(t, ball.Paused)

	e.Deactivate(s)
	assert.False(t, ball.Paused)
}

func TestInvertOpponentFlipsControlFlag(t *testing.T) {
	e, _, paddles, _ := setupEngine(t, [2][]PowerupType{{InvertOpponent}, {}})

	s, _, ok := e.Activate(0, 0)
	require.True(t, ok)
	assert.True(t, paddles[1].Inverted)
	assert.False(t, paddles[0].Inverted)

	e.Deactivate(s)
	assert.False(t, paddles[1].Inverted)
}

func TestSlotRollRespectsConfiguredCount(t *testing.T) {
	cfg := testConfig()
	cfg.SlotsPerSide = 5
	rng := rand.New(rand.NewSource(11))
	paddles := testPaddles(cfg)
	e := NewEngine(cfg, NewBall(cfg, rng), paddles, rng)

	for side := 0; side < 2; side++ {
		require.Len(t, e.Slots(side), 5)
		for i, s := range e.Slots(side) {
			assert.Equal(t, SlotUnused, s.State)
			assert.Equal(t, side, s.Side)
			assert.Equal(t, i, s.Index)
		}
	}
	assert.Nil(t, e.Slots(2))
}
