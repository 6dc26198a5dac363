// internal/arena/cpu.go
package arena

import (
	"math"
	"math/rand"
)

const (
	// How often the CPU is allowed to re-read the ball and pick a new target.
	cpuRetargetInterval = 1.0
	// Chase dead zone, keeps the paddle from jittering around the target.
	cpuDeadZone = 0.35
	// Base magnitude of aim error at CPULevel 0.
	cpuMaxNoise = 4.0
)

// CPUPaddle drives a paddle without a client. It only re-evaluates its
// target about once a second, which is what makes it beatable: between
// evaluations it chases a stale prediction. Prediction mirrors the ball's
// lateral travel off the side walls, then adds noise scaled down by the
// configured skill level.
type CPUPaddle struct {
	*Paddle

	targetX    float64
	retargetIn float64
	noise      float64

	rng *rand.Rand
}

// NewCPUPaddle wraps p with CPU control at the configured skill level.
func NewCPUPaddle(p *Paddle, cfg *Config, rng *rand.Rand) *CPUPaddle {
	level := cfg.CPULevel
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	return &CPUPaddle{
		Paddle: p,
		noise:  (1 - level) * cpuMaxNoise,
		rng:    rng,
	}
}

// Update retargets when the evaluation timer expires, then chases the
// current target. Assumes the match lock is held.
func (c *CPUPaddle) Update(dt float64, ball *Ball) {
	c.retargetIn -= dt
	if c.retargetIn <= 0 {
		c.retargetIn = cpuRetargetInterval
		c.retarget(ball)
	}

	diff := c.targetX - c.Rect.X
	if math.Abs(diff) <= cpuDeadZone {
		c.Move(dt, 0)
		return
	}
	dir := 1.0
	if diff < 0 {
		dir = -1
	}
	// No compensation for Inverted here: a mirrored-control effect confuses
	// the CPU exactly like it confuses a human.
	c.Move(dt, dir)
}

func (c *CPUPaddle) retarget(ball *Ball) {
	approaching := (c.Side == 0 && ball.DirY < 0) || (c.Side == 1 && ball.DirY > 0)
	if ball.Serving() || ball.Paused || !approaching {
		c.targetX = 0
		return
	}
	c.targetX = c.predictIntercept(ball) + (c.rng.Float64()*2-1)*c.noise
}

// predictIntercept projects the ball's lateral position at the moment it
// reaches this paddle's Y, folding the path back into the field at each
// wall bounce.
func (c *CPUPaddle) predictIntercept(ball *Ball) float64 {
	vy := ball.DirY * ball.Speed * ball.Modifier
	if vy == 0 {
		return ball.Rect.X
	}
	t := (c.Rect.Y - ball.Rect.Y) / vy
	if t < 0 {
		return ball.Rect.X
	}
	raw := ball.Rect.X + ball.DirX*ball.Speed*ball.Modifier*t
	return foldIntoField(raw, FieldHalfWidth)
}

// foldIntoField reflects x back into [-half, half] as a triangle wave,
// which is exactly what repeated elastic wall bounces do to the lateral
// coordinate.
func foldIntoField(x, half float64) float64 {
	span := 2 * half
	x = math.Mod(x+half, 2*span)
	if x < 0 {
		x += 2 * span
	}
	if x > span {
		x = 2*span - x
	}
	return x - half
}
