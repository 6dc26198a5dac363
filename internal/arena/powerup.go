// internal/arena/powerup.go
package arena

import (
	"math/rand"
	"time"
)

// PowerupType enumerates the effects a slot can hold.
type PowerupType int

const (
	SpeedUp PowerupType = iota
	SlowOpponent
	Grow
	ShrinkOpponent
	Freeze
	InvertOpponent

	numPowerupTypes
)

func (t PowerupType) String() string {
	switch t {
	case SpeedUp:
		return "speed_up"
	case SlowOpponent:
		return "slow_opponent"
	case Grow:
		return "grow"
	case ShrinkOpponent:
		return "shrink_opponent"
	case Freeze:
		return "freeze"
	case InvertOpponent:
		return "invert_opponent"
	}
	return "unknown"
}

// property groups types that act on the same underlying attribute. Opposing
// effects within a group on the same target are mutually exclusive.
type effectProperty int

const (
	propSpeed effectProperty = iota
	propSize
	propBall
	propControls
)

func (t PowerupType) property() effectProperty {
	switch t {
	case SpeedUp, SlowOpponent:
		return propSpeed
	case Grow, ShrinkOpponent:
		return propSize
	case Freeze:
		return propBall
	default:
		return propControls
	}
}

// targetSide resolves which paddle a slot owned by owner acts on. Freeze
// acts on the ball and returns -1.
func (t PowerupType) targetSide(owner int) int {
	switch t {
	case SpeedUp, Grow:
		return owner
	case Freeze:
		return -1
	}
	return 1 - owner
}

// SlotLifecycle is the state of one power-up slot. SPENT is terminal: a slot
// can be used at most once per match.
type SlotLifecycle int

const (
	SlotUnused SlotLifecycle = iota
	SlotActive
	SlotSpent
)

func (s SlotLifecycle) String() string {
	switch s {
	case SlotUnused:
		return "unused"
	case SlotActive:
		return "active"
	}
	return "spent"
}

// Slot is one single-use power-up held by a side.
type Slot struct {
	Type  PowerupType
	Side  int
	Index int
	State SlotLifecycle

	// applied is false when the activation was consumed by mutual
	// exclusion; deactivation then has nothing to revert.
	applied bool
}

// Engine owns both sides' power-up slots and applies and reverts their
// effects against the match entities. It does no timing of its own: the
// match schedules the deactivation the Engine's Activate asks for. All
// methods assume the match lock is held.
type Engine struct {
	cfg     *Config
	ball    *Ball
	paddles [2]*Paddle
	slots   [2][]*Slot
}

// NewEngine rolls SlotsPerSide independently random slots for each side and
// attaches them to the paddles for snapshotting.
func NewEngine(cfg *Config, ball *Ball, paddles [2]*Paddle, rng *rand.Rand) *Engine {
	e := &Engine{cfg: cfg, ball: ball, paddles: paddles}
	for side := 0; side < 2; side++ {
		for i := 0; i < cfg.SlotsPerSide; i++ {
			s := &Slot{
				Type:  PowerupType(rng.Intn(int(numPowerupTypes))),
				Side:  side,
				Index: i,
			}
			e.slots[side] = append(e.slots[side], s)
		}
		paddles[side].Slots = e.slots[side]
	}
	return e
}

// Slots returns the given side's slots.
func (e *Engine) Slots(side int) []*Slot {
	if side < 0 || side > 1 {
		return nil
	}
	return e.slots[side]
}

// Activate fires the slot at index for side. Returns the slot and how long
// the effect lasts; ok is false when the request cannot act (bad index or a
// slot that is no longer UNUSED), which callers treat as a silent no-op.
//
// Mutual exclusion: firing a speed or size effect while the opposing effect
// of the same group is active on the same target paddle cancels the active
// effect instead of stacking a contradiction. The new slot is still
// consumed; it comes back with duration 0 and the caller deactivates it on
// the next scheduler drain, taking it straight to SPENT.
func (e *Engine) Activate(side, index int) (*Slot, time.Duration, bool) {
	slots := e.Slots(side)
	if slots == nil || index < 0 || index >= len(slots) {
		return nil, 0, false
	}
	s := slots[index]
	if s.State != SlotUnused {
		return nil, 0, false
	}
	s.State = SlotActive

	prop := s.Type.property()
	if prop == propSpeed || prop == propSize {
		if rival := e.findOpposing(s); rival != nil {
			e.Deactivate(rival)
			s.applied = false
			return s, 0, true
		}
	}

	e.apply(s)
	s.applied = true
	dur := e.cfg.EffectDuration
	if s.Type == Freeze {
		dur = e.cfg.FreezeDuration
	}
	return s, dur, true
}

// Deactivate reverts a slot's effect and retires it. SPENT slots are
// terminal, so a second deactivation (or a stale timer firing after a
// cancellation) is a no-op.
func (e *Engine) Deactivate(s *Slot) {
	if s == nil || s.State != SlotActive {
		return
	}
	if s.applied {
		e.revert(s)
	}
	s.State = SlotSpent
}

// findOpposing locates an active slot of the same property group but a
// different type acting on the same target paddle.
func (e *Engine) findOpposing(s *Slot) *Slot {
	prop := s.Type.property()
	target := s.Type.targetSide(s.Side)
	for side := 0; side < 2; side++ {
		for _, other := range e.slots[side] {
			if other.State != SlotActive || other.Type == s.Type {
				continue
			}
			if other.Type.property() != prop {
				continue
			}
			if other.Type.targetSide(other.Side) != target {
				continue
			}
			return other
		}
	}
	return nil
}

func (e *Engine) apply(s *Slot) {
	target := s.Type.targetSide(s.Side)
	switch s.Type {
	case SpeedUp:
		e.paddles[target].Speed *= e.cfg.SpeedUpFactor
	case SlowOpponent:
		e.paddles[target].Speed *= e.cfg.SlowFactor
	case Grow:
		p := e.paddles[target]
		p.SetWidth(p.Rect.W * e.cfg.GrowFactor)
	case ShrinkOpponent:
		p := e.paddles[target]
		p.SetWidth(p.Rect.W * e.cfg.ShrinkFactor)
	case Freeze:
		e.ball.Paused = true
	case InvertOpponent:
		e.paddles[target].Inverted = true
	}
}

func (e *Engine) revert(s *Slot) {
	target := s.Type.targetSide(s.Side)
	switch s.Type {
	case SpeedUp:
		e.paddles[target].Speed /= e.cfg.SpeedUpFactor
	case SlowOpponent:
		e.paddles[target].Speed /= e.cfg.SlowFactor
	case Grow:
		p := e.paddles[target]
		p.SetWidth(p.Rect.W / e.cfg.GrowFactor)
	case ShrinkOpponent:
		p := e.paddles[target]
		p.SetWidth(p.Rect.W / e.cfg.ShrinkFactor)
	case Freeze:
		e.ball.Paused = false
	case InvertOpponent:
		e.paddles[target].Inverted = false
	}
}
