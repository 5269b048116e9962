// Package actuator closes the position loop of the force-controlled linear
// actuators: target integration, potentiometer filtering, PID drive and
// stall release.
package actuator

import "fmt"

// ID identifies one of the four linear actuators.
type ID int

const (
	Wrist ID = iota
	HeadTilt
	GripperL
	GripperR
)

// Count is the number of linear actuators.
const Count = 4

var idNames = [Count]string{"wrist", "head_tilt", "gripper_l", "gripper_r"}

// All returns every actuator in control order.
func All() [Count]ID {
	return [Count]ID{Wrist, HeadTilt, GripperL, GripperR}
}

func (id ID) String() string {
	if id < 0 || int(id) >= Count {
		return fmt.Sprintf("actuator(%d)", int(id))
	}
	return idNames[id]
}

// Valid reports whether id names one of the four actuators.
func (id ID) Valid() bool {
	return id >= 0 && int(id) < Count
}

// Direction is the H-bridge state of a motor channel.
type Direction int

const (
	Release  Direction = iota // coast, no drive
	Forward                   // driven by negative controller output
	Backward                  // driven by non-negative controller output
)

func (d Direction) String() string {
	switch d {
	case Release:
		return "release"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Drive is one motor command: a direction and an 8-bit speed.
// Speed is meaningless when Dir is Release.
type Drive struct {
	Dir   Direction
	Speed uint8
}

func (d Drive) String() string {
	if d.Dir == Release {
		return "release"
	}
	return fmt.Sprintf("%s@%d", d.Dir, d.Speed)
}

// driveFor converts a signed controller output into a motor command.
func driveFor(out float64) Drive {
	if out < 0 {
		return Drive{Dir: Forward, Speed: uint8(-out)}
	}
	return Drive{Dir: Backward, Speed: uint8(out)}
}

// Hardware reads actuator potentiometers and applies motor commands.
// Reads are immediate; implementations must not block on motion.
type Hardware interface {
	ReadPosition(id ID) (int, error)
	Apply(id ID, d Drive) error
}

// Params holds the static per-actuator settings.
type Params struct {
	Name          string
	Min, Max      int
	InitialTarget int
	Kp, Ki, Kd    float64
}

func (p Params) clamp(v int) int {
	if v > p.Max {
		return p.Max
	}
	if v < p.Min {
		return p.Min
	}
	return v
}
