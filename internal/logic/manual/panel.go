// Package manual reads the local button panel and turns it into the same
// kind of demands the remote command stream produces.
package manual

import (
	"fmt"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/cjeanneret/v2mini/internal/hw/gpio"
)

// Button positions in the pin list.
const (
	JogMinus = iota
	JogPlus
	AxisPrev
	AxisNext
	HeightDown
	HeightUp
	FaceToggle
	NumButtons
)

// NumAxes is the number of jog targets: the four actuators then pan.
const NumAxes = 5

// PanAxis is the axis index of the pan joint.
const PanAxis = 4

// JogStep is the demand applied to the selected axis while a jog button is held.
const JogStep = 5

// Input is the demand read from the panel on one pass.
type Input struct {
	Face   int // 1 on the pass the face button is pressed
	Height int // +1 up, -1 down, 0 idle
	Axis   int // selected jog axis, 0..3 actuators, PanAxis for pan
	Jog    int // signed jog demand for Axis
}

// Panel samples seven pull-up buttons wired to ground. A button is pressed
// while its pin reads Low.
type Panel struct {
	drv     gpio.Driver
	pins    [NumButtons]int
	pressed [NumButtons]bool
	axis    int
}

// NewPanel configures the button pins as pull-up inputs.
func NewPanel(drv gpio.Driver, pins []int) (*Panel, error) {
	if len(pins) != NumButtons {
		return nil, fmt.Errorf("manual: expected %d button pins, got %d", NumButtons, len(pins))
	}
	p := &Panel{drv: drv}
	for i, pin := range pins {
		if err := drv.SetupPin(pin, gpio.InputPullUp); err != nil {
			return nil, fmt.Errorf("setup button pin %d: %w", pin, err)
		}
		p.pins[i] = pin
	}
	return p, nil
}

// Poll reads every button once. changed is true when any button went down
// or up on this pass; callers apply the input only then so an idle panel
// does not override remote commands.
func (p *Panel) Poll() (in Input, changed bool, err error) {
	var edge [NumButtons]bool
	for i, pin := range p.pins {
		level, rerr := p.drv.ReadPin(pin)
		if rerr != nil {
			return Input{}, false, fmt.Errorf("read button pin %d: %w", pin, rerr)
		}
		down := level == gpio.Low
		if down != p.pressed[i] {
			changed = true
			edge[i] = down
		}
		p.pressed[i] = down
	}

	if edge[AxisNext] {
		p.axis = (p.axis + 1) % NumAxes
	}
	if edge[AxisPrev] {
		p.axis = (p.axis + NumAxes - 1) % NumAxes
	}
	if edge[AxisNext] || edge[AxisPrev] {
		debug.Live("Manual axis -> %d", p.axis)
	}

	in = Input{
		Height: btoi(p.pressed[HeightUp]) - btoi(p.pressed[HeightDown]),
		Axis:   p.axis,
		Jog:    JogStep * (btoi(p.pressed[JogPlus]) - btoi(p.pressed[JogMinus])),
	}
	if edge[FaceToggle] {
		in.Face = 1
	}
	return in, changed, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
