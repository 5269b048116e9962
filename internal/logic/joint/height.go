package joint

import (
	"fmt"
	"math"

	"github.com/cjeanneret/v2mini/internal/debug"
)

// HeightServo writes an absolute torso angle in whole degrees.
type HeightServo interface {
	WriteAngle(deg int) error
}

// Height ramps the torso at a fixed rate. The demand only selects the
// direction; its magnitude is ignored.
type Height struct {
	servo     HeightServo
	min, max  float64
	increment float64
	position  float64
	demand    int
}

// NewHeight creates a torso joint resting halfway between min and max.
// increment is the fixed per-tick step in degrees.
func NewHeight(servo HeightServo, min, max, increment float64) (*Height, error) {
	if min >= max {
		return nil, fmt.Errorf("height: min %g must be < max %g", min, max)
	}
	if increment <= 0 {
		return nil, fmt.Errorf("height: increment must be positive, got %g", increment)
	}
	return &Height{
		servo:     servo,
		min:       min,
		max:       max,
		increment: increment,
		position:  (min + max) / 2,
	}, nil
}

// Home writes the resting angle.
func (h *Height) Home() error {
	if err := h.servo.WriteAngle(h.Angle()); err != nil {
		return fmt.Errorf("home height: %w", err)
	}
	return nil
}

// SetDemand stores the signed height demand.
func (h *Height) SetDemand(demand int) {
	h.demand = demand
}

// Step moves one increment in the demanded direction, clamps and writes.
func (h *Height) Step() {
	switch {
	case h.demand > 0:
		h.position += h.increment
	case h.demand < 0:
		h.position -= h.increment
	}
	h.position = math.Max(h.min, math.Min(h.max, h.position))
	if err := h.servo.WriteAngle(h.Angle()); err != nil {
		debug.Error(fmt.Errorf("height angle %d: %w", h.Angle(), err))
	}
}

// Position returns the accumulated torso angle in degrees.
func (h *Height) Position() float64 {
	return h.position
}

// Angle returns the angle written to the servo: the position rounded up.
func (h *Height) Angle() int {
	return int(math.Ceil(h.position))
}

// Demand returns the stored demand.
func (h *Height) Demand() int {
	return h.demand
}
