package actuator

import (
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/cjeanneret/v2mini/internal/logic/filter"
)

// Settings holds the controller settings shared by every actuator.
type Settings struct {
	Window      int           // running-average samples
	SampleTime  time.Duration // PID recompute cadence
	OutputLimit int           // drive clamp, also the stall saturation bound
	Deadband    int           // release when |target - filtered| is below this
	StallTicks  int           // release an idle saturated actuator after this many ticks
}

// DefaultSettings returns the firmware tuning.
func DefaultSettings() Settings {
	return Settings{
		Window:      10,
		SampleTime:  50 * time.Millisecond,
		OutputLimit: 255,
		Deadband:    5,
		StallTicks:  40,
	}
}

// State is a read-only view of one actuator after its last step.
type State struct {
	ID       ID      `json:"-"`
	Name     string  `json:"name"`
	Target   int     `json:"target"`
	Filtered int     `json:"filtered"`
	Raw      int     `json:"raw"`
	Demand   int     `json:"demand"`
	Output   float64 `json:"output"`
	Stall    int     `json:"stall"`
	Drive    Drive   `json:"-"`
	DriveStr string  `json:"drive"`
}

type channel struct {
	params  Params
	target  int
	demand  int
	raw     int
	stall   int
	stalled bool
	drive   Drive
	pid     *pidLoop
}

// Group owns the state of all four actuators. It is not safe for concurrent
// use: the control loop is its only caller.
type Group struct {
	hw       Hardware
	settings Settings
	bank     *filter.Bank
	channels [Count]*channel
}

// NewGroup creates the actuator group. params must hold one entry per
// actuator in ID order.
func NewGroup(hw Hardware, params []Params, s Settings) (*Group, error) {
	if len(params) != Count {
		return nil, fmt.Errorf("actuator: expected %d parameter sets, got %d", Count, len(params))
	}
	if s.Window <= 0 || s.SampleTime <= 0 || s.OutputLimit <= 0 {
		return nil, fmt.Errorf("actuator: invalid settings %+v", s)
	}
	g := &Group{
		hw:       hw,
		settings: s,
		bank:     filter.NewBank(Count, s.Window),
	}
	for i, p := range params {
		if p.Min >= p.Max {
			return nil, fmt.Errorf("actuator %s: min %d must be < max %d", ID(i), p.Min, p.Max)
		}
		g.channels[i] = &channel{
			params: p,
			target: p.clamp(p.InitialTarget),
			pid:    newPIDLoop(p.Kp, p.Ki, p.Kd, float64(s.OutputLimit), s.SampleTime),
		}
	}
	return g, nil
}

// Prime reads every potentiometer once, fills the running averages with
// that reading and seeds each PID with it.
func (g *Group) Prime() error {
	for _, id := range All() {
		raw, err := g.hw.ReadPosition(id)
		if err != nil {
			return fmt.Errorf("prime %s: %w", id, err)
		}
		ch := g.channels[id]
		ch.raw = raw
		g.bank.Prime(int(id), int64(raw))
		ch.pid.prime(float64(raw))
		debug.Verbose("Actuator %s primed at %d (target %d)", id, raw, ch.target)
	}
	return nil
}

// SetDemand sets the per-tick target increment of an actuator.
func (g *Group) SetDemand(id ID, demand int) {
	g.channels[id].demand = demand
}

// SetTarget overwrites the target of an actuator. It is clamped on the next step.
func (g *Group) SetTarget(id ID, target int) {
	g.channels[id].target = target
}

// Step runs one control step for a single actuator: integrate the target,
// filter the position, then drive, release or count a stall.
func (g *Group) Step(id ID, now time.Time) {
	ch := g.channels[id]
	s := g.settings

	target := ch.params.clamp(ch.target + ch.demand)

	if raw, err := g.hw.ReadPosition(id); err != nil {
		debug.Error(fmt.Errorf("read %s position: %w", id, err))
	} else {
		ch.raw = raw
	}
	filtered := int(g.bank.Update(int(id), int64(ch.raw)))

	idleStall := ch.stall > s.StallTicks && ch.demand == 0
	var d Drive
	if abs(target-filtered) < s.Deadband || idleStall {
		d = Drive{Dir: Release}
		if idleStall && !ch.stalled {
			debug.Stall(id.String(), ch.stall)
		}
	} else {
		d = driveFor(ch.pid.compute(now, float64(target), float64(filtered)))
	}
	ch.stalled = idleStall

	if math.Abs(ch.pid.output()) == float64(s.OutputLimit) && ch.demand == 0 {
		ch.stall++
	} else {
		ch.stall = 0
	}

	ch.target = target
	ch.drive = d
	debug.Drive(id.String(), target, filtered, d.String())
	if err := g.hw.Apply(id, d); err != nil {
		debug.Error(fmt.Errorf("drive %s: %w", id, err))
	}
}

// StepAll steps every actuator in ID order and then advances the shared
// filter window.
func (g *Group) StepAll(now time.Time) {
	for _, id := range All() {
		g.Step(id, now)
	}
	g.bank.Advance()
}

// ReleaseAll coasts every motor.
func (g *Group) ReleaseAll() error {
	var first error
	for _, id := range All() {
		g.channels[id].drive = Drive{Dir: Release}
		if err := g.hw.Apply(id, Drive{Dir: Release}); err != nil && first == nil {
			first = fmt.Errorf("release %s: %w", id, err)
		}
	}
	return first
}

// State returns the current view of one actuator.
func (g *Group) State(id ID) State {
	ch := g.channels[id]
	return State{
		ID:       id,
		Name:     ch.params.Name,
		Target:   ch.target,
		Filtered: int(g.bank.Value(int(id))),
		Raw:      ch.raw,
		Demand:   ch.demand,
		Output:   ch.pid.output(),
		Stall:    ch.stall,
		Drive:    ch.drive,
		DriveStr: ch.drive.String(),
	}
}

// States returns the view of all actuators in ID order.
func (g *Group) States() [Count]State {
	var out [Count]State
	for _, id := range All() {
		out[id] = g.State(id)
	}
	return out
}

// Limits returns the target bounds of one actuator.
func (g *Group) Limits(id ID) (lo, hi int) {
	p := g.channels[id].params
	return p.Min, p.Max
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
