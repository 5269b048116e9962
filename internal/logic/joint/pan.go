// Package joint holds the two simple position-controlled joints: the neck
// pan bus servo and the torso height servo.
package joint

import (
	"fmt"

	"github.com/cjeanneret/v2mini/internal/debug"
)

// PanServo is the native position interface of the pan bus servo.
// It owns interpolation; callers only send absolute goals.
type PanServo interface {
	SetGoal(position, speed int) error
}

// Pan clamps an absolute pan target to center ± deviation and forwards it.
type Pan struct {
	servo     PanServo
	center    int
	deviation int
	speed     int
	target    int
	position  int
}

// NewPan creates a pan joint resting at center.
func NewPan(servo PanServo, center, deviation, speed int) (*Pan, error) {
	if deviation < 0 {
		return nil, fmt.Errorf("pan: negative deviation %d", deviation)
	}
	return &Pan{
		servo:     servo,
		center:    center,
		deviation: deviation,
		speed:     speed,
		target:    center,
		position:  center,
	}, nil
}

// Home sends the servo to center at the configured speed.
func (p *Pan) Home() error {
	p.target = p.center
	p.position = p.center
	if err := p.servo.SetGoal(p.center, p.speed); err != nil {
		return fmt.Errorf("home pan: %w", err)
	}
	return nil
}

// SetTarget stores a new absolute target. It is clamped on the next step.
func (p *Pan) SetTarget(target int) {
	p.target = target
}

// Target returns the last requested target, unclamped.
func (p *Pan) Target() int {
	return p.target
}

// Step clamps the target and forwards it to the servo.
func (p *Pan) Step() {
	p.position = p.Clamp(p.target)
	debug.Trace("Pan goal=%d (target %d)", p.position, p.target)
	if err := p.servo.SetGoal(p.position, p.speed); err != nil {
		debug.Error(fmt.Errorf("pan goal %d: %w", p.position, err))
	}
}

// Clamp bounds v to the allowed pan window.
func (p *Pan) Clamp(v int) int {
	lo, hi := p.Limits()
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Limits returns the allowed pan window.
func (p *Pan) Limits() (lo, hi int) {
	return p.center - p.deviation, p.center + p.deviation
}

// Position returns the last position sent to the servo.
func (p *Pan) Position() int {
	return p.position
}
