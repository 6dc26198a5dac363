// internal/arena/config.go
package arena

import "time"

// Field geometry. X is the lateral axis bounded by the side walls; Y is the
// goal axis. Side 0 defends the negative-Y goal line, side 1 the positive-Y
// one. All units are abstract field units; clients scale for rendering.
const (
	FieldHalfWidth  = 10.0
	FieldHalfLength = 15.0

	PaddleWidth  = 4.0
	PaddleHeight = 1.0
	// Distance from a paddle's goal line to its near face.
	PaddleInset = 1.0

	BallSize = 0.8
)

// Config carries the tunable rules for a match. DefaultConfig is what the
// directory hands out; tests shrink durations to keep runs fast.
type Config struct {
	TickRate  int
	WinScore  int
	CPULevel  float64 // 0..1, scales reaction noise down as it rises

	BallSpeed   float64
	PaddleSpeed float64

	ServeDelay time.Duration

	SlotsPerSide   int
	EffectDuration time.Duration
	FreezeDuration time.Duration

	SpeedUpFactor float64
	SlowFactor    float64
	GrowFactor    float64
	ShrinkFactor  float64
}

// DefaultConfig returns the standard ruleset.
func DefaultConfig() *Config {
	return &Config{
		TickRate:  30,
		WinScore:  5,
		CPULevel:  0.6,

		BallSpeed:   14.0,
		PaddleSpeed: 12.0,

		ServeDelay: 1500 * time.Millisecond,

		SlotsPerSide:   3,
		EffectDuration: 5 * time.Second,
		FreezeDuration: 1500 * time.Millisecond,

		SpeedUpFactor: 1.5,
		SlowFactor:    0.6,
		GrowFactor:    1.5,
		ShrinkFactor:  0.6,
	}
}

// TickInterval is the wall-clock duration of one simulation step.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Dt is the fixed timestep in seconds.
func (c *Config) Dt() float64 {
	return 1.0 / float64(c.TickRate)
}
