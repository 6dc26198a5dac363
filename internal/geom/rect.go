// internal/geom/rect.go
package geom

// Rect is an axis-aligned box stored as a center point plus full extents.
// Edge coordinates (left/right/top/bottom) are always derived from the
// center+extent representation, and the edge setters reposition the center,
// so no sequence of calls can produce an inconsistent box. W and H must be
// positive; NewRect enforces this and the setters preserve it.
type Rect struct {
	X float64 // center x
	Y float64 // center y
	W float64 // full width, > 0
	H float64 // full height, > 0
}

// NewRect builds a Rect centered at (x, y). Non-positive extents are
// coerced to a minimal positive size so the w,h > 0 invariant holds.
func NewRect(x, y, w, h float64) Rect {
	if w <= 0 {
		w = 1e-9
	}
	if h <= 0 {
		h = 1e-9
	}
	return Rect{X: x, Y: y, W: w, H: h}
}

func (r *Rect) Left() float64   { return r.X - r.W/2 }
func (r *Rect) Right() float64  { return r.X + r.W/2 }
func (r *Rect) Top() float64    { return r.Y - r.H/2 }
func (r *Rect) Bottom() float64 { return r.Y + r.H/2 }

// SetLeft repositions the rect so its left edge sits at v.
func (r *Rect) SetLeft(v float64) { r.X = v + r.W/2 }

// SetRight repositions the rect so its right edge sits at v.
func (r *Rect) SetRight(v float64) { r.X = v - r.W/2 }

// SetTop repositions the rect so its top edge sits at v.
func (r *Rect) SetTop(v float64) { r.Y = v + r.H/2 }

// SetBottom repositions the rect so its bottom edge sits at v.
func (r *Rect) SetBottom(v float64) { r.Y = v - r.H/2 }

func (r *Rect) SetCenterX(v float64) { r.X = v }
func (r *Rect) SetCenterY(v float64) { r.Y = v }

// Overlaps reports a strict AABB intersection. Rects that merely share an
// edge do not overlap; a collision requires actual penetration.
func (r *Rect) Overlaps(o *Rect) bool {
	return r.Left() < o.Right() && r.Right() > o.Left() &&
		r.Top() < o.Bottom() && r.Bottom() > o.Top()
}

// CopyFrom overwrites this rect with the contents of o. Used to snapshot
// the previous-tick position before moving an entity.
func (r *Rect) CopyFrom(o *Rect) {
	r.X, r.Y, r.W, r.H = o.X, o.Y, o.W, o.H
}

// Clone returns an independent copy of the rect.
func (r *Rect) Clone() Rect {
	return *r
}
