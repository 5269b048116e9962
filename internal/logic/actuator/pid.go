package actuator

import (
	"time"

	"github.com/felixge/pidctrl"
)

// pidLoop gates a PID controller to a fixed sample time. Between samples the
// previous output is returned unchanged; every recompute integrates over
// exactly one sample period.
type pidLoop struct {
	ctrl     *pidctrl.PIDController
	sample   time.Duration
	last     time.Time
	computed bool
	out      float64
}

func newPIDLoop(kp, ki, kd float64, limit float64, sample time.Duration) *pidLoop {
	return &pidLoop{
		ctrl:   pidctrl.NewPIDController(kp, ki, kd).SetOutputLimits(-limit, limit),
		sample: sample,
	}
}

// prime seeds the derivative memory with the first measurement so the
// first real sample does not see a step from zero.
func (p *pidLoop) prime(input float64) {
	p.ctrl.Set(input)
	p.ctrl.UpdateDuration(input, 0)
}

// compute returns the controller output for now, recomputing only when a
// full sample period has elapsed since the previous recompute.
func (p *pidLoop) compute(now time.Time, setpoint, input float64) float64 {
	if p.computed && now.Sub(p.last) < p.sample {
		return p.out
	}
	p.ctrl.Set(setpoint)
	p.out = p.ctrl.UpdateDuration(input, p.sample)
	p.last = now
	p.computed = true
	return p.out
}

func (p *pidLoop) output() float64 {
	return p.out
}
