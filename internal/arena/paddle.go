// internal/arena/paddle.go
package arena

import "github.com/volleyhq/volley/internal/geom"

// Paddle is one side's racket. It slides along the X axis at a fixed Y near
// its goal line. BaseSpeed and base width are retained so power-up effects
// can revert cleanly.
type Paddle struct {
	Side int

	Rect     geom.Rect
	PrevRect geom.Rect

	Speed     float64
	BaseSpeed float64

	Score int

	// Inverted mirrors the control direction while an opponent's invert
	// effect is active.
	Inverted bool

	Slots []*Slot
}

// NewPaddle places a paddle for the given side. Side 0 sits just inside the
// negative-Y goal line, side 1 the positive-Y one.
func NewPaddle(side int, cfg *Config) *Paddle {
	y := -(FieldHalfLength - PaddleInset - PaddleHeight/2)
	if side == 1 {
		y = -y
	}
	r := geom.NewRect(0, y, PaddleWidth, PaddleHeight)
	return &Paddle{
		Side:      side,
		Rect:      r,
		PrevRect:  r.Clone(),
		Speed:     cfg.PaddleSpeed,
		BaseSpeed: cfg.PaddleSpeed,
	}
}

// Move shifts the paddle along X by dir (-1, 0, +1) for one timestep. The
// move is all or nothing: if the full step would cross a side wall the
// paddle does not move at all, so the paddle never clips into a wall and
// never creeps along it in sub-steps. Assumes the match lock is held.
func (p *Paddle) Move(dt, dir float64) {
	p.PrevRect.CopyFrom(&p.Rect)
	if dir == 0 {
		return
	}
	if p.Inverted {
		dir = -dir
	}
	nx := p.Rect.X + dir*p.Speed*dt
	half := p.Rect.W / 2
	if nx-half < -FieldHalfWidth || nx+half > FieldHalfWidth {
		return
	}
	p.Rect.SetCenterX(nx)
}

// SetWidth resizes the paddle in place, clamping the result inside the side
// walls. Assumes the match lock is held.
func (p *Paddle) SetWidth(w float64) {
	p.Rect.W = w
	if p.Rect.Left() < -FieldHalfWidth {
		p.Rect.SetLeft(-FieldHalfWidth)
	}
	if p.Rect.Right() > FieldHalfWidth {
		p.Rect.SetRight(FieldHalfWidth)
	}
}
