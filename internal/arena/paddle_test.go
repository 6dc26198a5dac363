// internal/arena/paddle_test.go
package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoveIsAllOrNothingAtWall(t *testing.T) {
	cfg := testConfig()
	p := NewPaddle(0, cfg)
	p.Rect.SetRight(FieldHalfWidth - 0.1)
	x := p.Rect.X

	// A full step would cross the wall, so nothing moves. No partial clamp.
	p.Move(0.1, 1)
	assert.Equal(t, x, p.Rect.X)

	// Away from the wall the same step works.
	p.Move(0.1, -1)
	assert.InDelta(t, x-p.Speed*0.1, p.Rect.X, 1e-9)
}

func TestMoveZeroDirectionOnlySnapshots(t *testing.T) {
	cfg := testConfig()
	p := NewPaddle(1, cfg)
	p.Rect.SetCenterX(2)
	p.Move(0.1, 0)
	assert.Equal(t, 2.0, p.Rect.X)
	assert.Equal(t, 2.0, p.PrevRect.X)
}

func TestInvertedFlagMirrorsControls(t *testing.T) {
	cfg := testConfig()
	p := NewPaddle(0, cfg)
	p.Inverted = true

	p.Move(0.1, 1)
	assert.Negative(t, p.Rect.X, "inverted paddle moves opposite the input")
}

func TestSetWidthClampsInsideWalls(t *testing.T) {
	cfg := testConfig()
	p := NewPaddle(0, cfg)
	p.Rect.SetRight(FieldHalfWidth)

	p.SetWidth(p.Rect.W * 2)
	assert.LessOrEqual(t, p.Rect.Right(), FieldHalfWidth)
	assert.GreaterOrEqual(t, p.Rect.Left(), -FieldHalfWidth)
}

func TestPaddleSpawnsByItsGoalLine(t *testing.T) {
	cfg := testConfig()
	p0 := NewPaddle(0, cfg)
	p1 := NewPaddle(1, cfg)
	assert.Negative(t, p0.Rect.Y)
	assert.Positive(t, p1.Rect.Y)
	assert.InDelta(t, -p0.Rect.Y, p1.Rect.Y, 1e-9, "sides are mirrored")
}
