// internal/arena/ball.go
package arena

import (
	"math"
	"math/rand"

	"github.com/volleyhq/volley/internal/geom"
)

// maxServeAngle bounds the randomized serve direction to 45 degrees off the
// goal axis so every serve makes progress toward a paddle.
const maxServeAngle = math.Pi / 4

// Ball is the match ball. Direction is a unit vector; effective velocity is
// direction * Speed * modifier, where the modifier is 0 while serving and 1
// once live. Paused short-circuits the update entirely (freeze power-up,
// match pause).
type Ball struct {
	Rect     geom.Rect
	PrevRect geom.Rect

	DirX float64
	DirY float64

	Speed    float64
	Modifier float64
	Paused   bool

	serveLeft float64

	cfg *Config
	rng *rand.Rand
}

// NewBall creates a ball at field center in the serving state.
func NewBall(cfg *Config, rng *rand.Rand) *Ball {
	b := &Ball{
		Rect:  geom.NewRect(0, 0, BallSize, BallSize),
		Speed: cfg.BallSpeed,
		cfg:   cfg,
		rng:   rng,
	}
	b.PrevRect = b.Rect.Clone()
	b.ResetServe()
	return b
}

// Serving reports whether the ball is still in its serve delay.
func (b *Ball) Serving() bool {
	return b.Modifier == 0
}

// ResetServe recenters the ball, rolls a fresh direction and restarts the
// serve delay. Assumes the match lock is held.
func (b *Ball) ResetServe() {
	b.Rect.SetCenterX(0)
	b.Rect.SetCenterY(0)
	b.PrevRect.CopyFrom(&b.Rect)
	b.randomizeDirection()
	b.serveLeft = b.cfg.ServeDelay.Seconds()
	if b.serveLeft > 0 {
		b.Modifier = 0
	} else {
		b.Modifier = 1
	}
}

func (b *Ball) randomizeDirection() {
	angle := (b.rng.Float64()*2 - 1) * maxServeAngle
	b.DirX = math.Sin(angle)
	b.DirY = math.Cos(angle)
	if b.rng.Intn(2) == 0 {
		b.DirY = -b.DirY
	}
}

// Update advances the ball one timestep and resolves collisions against the
// two paddles, the side walls and the goal lines. It returns the side that
// scored this tick (-1 if none) and whether a paddle face was struck.
// Movement and collision run per axis: X first, then Y, each resolved
// against the paddles before the other axis moves. The crossed face is
// decided from the previous tick's non-overlap, so a fast ball cannot
// tunnel to the wrong side of a paddle. Assumes the match lock is held.
func (b *Ball) Update(dt float64, paddles [2]*Paddle) (scorer int, hit bool) {
	scorer = -1
	if b.Paused {
		return
	}
	if b.serveLeft > 0 {
		b.serveLeft -= dt
		if b.serveLeft <= 0 {
			b.Modifier = 1
		}
		return
	}

	b.PrevRect.CopyFrom(&b.Rect)
	v := b.Speed * b.Modifier

	b.Rect.X += b.DirX * v * dt
	for _, p := range paddles {
		if b.resolveX(p) {
			hit = true
		}
	}

	b.Rect.Y += b.DirY * v * dt
	for _, p := range paddles {
		if b.resolveY(p) {
			hit = true
		}
	}

	// Side walls invert the lateral component and clamp.
	if b.Rect.Left() < -FieldHalfWidth {
		b.Rect.SetLeft(-FieldHalfWidth)
		b.DirX = math.Abs(b.DirX)
	} else if b.Rect.Right() > FieldHalfWidth {
		b.Rect.SetRight(FieldHalfWidth)
		b.DirX = -math.Abs(b.DirX)
	}

	// Crossing a goal line scores for the opposite side.
	if b.Rect.Y < -FieldHalfLength {
		scorer = 1
		b.ResetServe()
	} else if b.Rect.Y > FieldHalfLength {
		scorer = 0
		b.ResetServe()
	}
	return
}

// resolveX handles a hit on a paddle's lateral (left/right) face after the
// X move. The approach side comes from the previous tick: the ball was
// wholly on one side then, so only that face can have been crossed.
func (b *Ball) resolveX(p *Paddle) bool {
	if !b.Rect.Overlaps(&p.Rect) {
		return false
	}
	switch {
	case b.PrevRect.Right() <= p.Rect.Left():
		b.Rect.SetRight(p.Rect.Left())
		b.DirX = -math.Abs(b.DirX)
	case b.PrevRect.Left() >= p.Rect.Right():
		b.Rect.SetLeft(p.Rect.Right())
		b.DirX = math.Abs(b.DirX)
	default:
		return false
	}
	return true
}

// resolveY handles a hit on a paddle's goal-facing face after the Y move.
// The return bounce picks up spin from where the ball struck the paddle.
func (b *Ball) resolveY(p *Paddle) bool {
	if !b.Rect.Overlaps(&p.Rect) {
		return false
	}
	switch {
	case b.PrevRect.Bottom() <= p.Rect.Top():
		b.Rect.SetBottom(p.Rect.Top())
		b.DirY = -math.Abs(b.DirY)
	case b.PrevRect.Top() >= p.Rect.Bottom():
		b.Rect.SetTop(p.Rect.Bottom())
		b.DirY = math.Abs(b.DirY)
	default:
		return false
	}
	b.applySpin(p)
	return true
}

// applySpin skews the lateral component toward the strike offset from the
// paddle center, then renormalizes so speed stays constant.
func (b *Ball) applySpin(p *Paddle) {
	offset := (b.Rect.X - p.Rect.X) / (p.Rect.W / 2)
	if offset > 1 {
		offset = 1
	} else if offset < -1 {
		offset = -1
	}
	b.DirX = (b.DirX + offset) / 2
	norm := math.Hypot(b.DirX, b.DirY)
	if norm == 0 {
		return
	}
	b.DirX /= norm
	b.DirY /= norm
}
