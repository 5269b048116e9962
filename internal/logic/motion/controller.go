// Package motion runs the fixed-period control loop. The Controller is the
// layer between the command producers (remote intake, button panel) and
// the joint controllers: it applies pending commands once per pass and,
// when a period has elapsed, ticks expression, height, pan and the four
// actuators in that order.
package motion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/cjeanneret/v2mini/internal/logic/actuator"
	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/expression"
	"github.com/cjeanneret/v2mini/internal/logic/joint"
	"github.com/cjeanneret/v2mini/internal/logic/manual"
)

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the process monotonic clock.
var SystemClock Clock = systemClock{}

// Parts are the components driven by the loop. Panel may be nil.
type Parts struct {
	Intake    *command.Intake
	Panel     *manual.Panel
	Face      *expression.Machine
	Height    *joint.Height
	Pan       *joint.Pan
	Actuators *actuator.Group
}

// Timing holds the loop cadence.
type Timing struct {
	Period time.Duration // minimum interval between ticks
	Poll   time.Duration // dispatch cadence of Run
}

// Controller owns the control loop. Poll, Tick and Run must be called from
// a single goroutine; Ticks and Latest are safe from any goroutine.
type Controller struct {
	parts  Parts
	timing Timing
	clock  Clock

	prev   time.Time
	panJog int
	axis   int

	ticks  atomic.Uint64
	latest atomic.Pointer[Snapshot]

	obsMu     sync.RWMutex
	observers []func(Snapshot)
}

// NewController creates a loop over parts.
func NewController(parts Parts, timing Timing, clock Clock) (*Controller, error) {
	if parts.Intake == nil || parts.Face == nil || parts.Height == nil || parts.Pan == nil || parts.Actuators == nil {
		return nil, fmt.Errorf("motion: intake, face, height, pan and actuators are required")
	}
	if timing.Period <= 0 {
		return nil, fmt.Errorf("motion: period must be positive, got %v", timing.Period)
	}
	if timing.Poll <= 0 || timing.Poll > timing.Period {
		timing.Poll = timing.Period
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Controller{parts: parts, timing: timing, clock: clock}, nil
}

// OnTick registers fn to receive a snapshot after every tick. fn runs on
// the loop goroutine and must not block.
func (c *Controller) OnTick(fn func(Snapshot)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Home puts the robot in its start pose: pan centered, torso halfway,
// neutral face and actuator filters primed from a first reading. The tick
// clock starts here.
func (c *Controller) Home() error {
	debug.Section("Homing")
	debug.Step(1, "center pan")
	if err := c.parts.Pan.Home(); err != nil {
		return err
	}
	debug.Step(2, "torso to average height")
	if err := c.parts.Height.Home(); err != nil {
		return err
	}
	debug.Step(3, "neutral expression")
	if err := c.parts.Face.Home(); err != nil {
		return err
	}
	debug.Step(4, "prime actuator filters")
	if err := c.parts.Actuators.Prime(); err != nil {
		return err
	}
	c.prev = c.clock.Now()
	c.publish(c.prev)
	return nil
}

// Dispatch applies what the producers left since the previous pass: the
// pending command record, the latest emotion and the button panel.
func (c *Controller) Dispatch() {
	p := c.parts
	if r, ok := p.Intake.Take(); ok {
		debug.Verbose("Command %+v", r)
		p.Face.SetToggle(r.Face)
		p.Height.SetDemand(r.Height)
		p.Actuators.SetTarget(actuator.HeadTilt, r.HeadTilt)
		p.Pan.SetTarget(r.Pan)
		p.Actuators.SetDemand(actuator.Wrist, r.Wrist)
		p.Actuators.SetDemand(actuator.GripperL, r.Gripper)
		p.Actuators.SetDemand(actuator.GripperR, r.Gripper)
		c.panJog = 0
	}
	p.Face.SetEmotion(p.Intake.Emotion())

	if p.Panel == nil {
		return
	}
	in, changed, err := p.Panel.Poll()
	if err != nil {
		debug.Error(err)
		return
	}
	if !changed {
		return
	}
	debug.Verbose("Manual %+v", in)
	c.axis = in.Axis
	p.Face.SetToggle(in.Face)
	p.Height.SetDemand(in.Height)
	for _, id := range actuator.All() {
		d := 0
		if int(id) == in.Axis {
			d = in.Jog
		}
		p.Actuators.SetDemand(id, d)
	}
	c.panJog = 0
	if in.Axis == manual.PanAxis {
		c.panJog = in.Jog
	}
}

// Poll dispatches once and ticks if a full period has elapsed since the
// previous tick. Missed periods are not made up. It reports whether a tick ran.
func (c *Controller) Poll() bool {
	c.Dispatch()
	now := c.clock.Now()
	if now.Sub(c.prev) < c.timing.Period {
		return false
	}
	c.prev = now
	c.Tick(now)
	return true
}

// Tick runs one control step.
func (c *Controller) Tick(now time.Time) {
	p := c.parts
	p.Face.Update(now)
	p.Height.Step()
	if c.panJog != 0 {
		p.Pan.SetTarget(p.Pan.Clamp(p.Pan.Target() + c.panJog))
	}
	p.Pan.Step()
	p.Actuators.StepAll(now)
	c.ticks.Add(1)
	c.publish(now)
}

// Run polls until ctx is cancelled, then releases every actuator.
func (c *Controller) Run(ctx context.Context) error {
	if c.prev.IsZero() {
		c.prev = c.clock.Now()
	}
	debug.Info("Control loop running (period %v, poll %v)", c.timing.Period, c.timing.Poll)
	ticker := time.NewTicker(c.timing.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			debug.Info("Control loop stopped after %d ticks", c.ticks.Load())
			if err := c.parts.Actuators.ReleaseAll(); err != nil {
				return fmt.Errorf("release actuators: %w", err)
			}
			return nil
		case <-ticker.C:
			c.Poll()
		}
	}
}

// Ticks returns the number of ticks run so far.
func (c *Controller) Ticks() uint64 {
	return c.ticks.Load()
}

// Latest returns the most recent snapshot, or nil before homing.
func (c *Controller) Latest() *Snapshot {
	return c.latest.Load()
}

func (c *Controller) publish(now time.Time) {
	s := c.snapshot(now)
	c.latest.Store(&s)
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, fn := range c.observers {
		fn(s)
	}
}
