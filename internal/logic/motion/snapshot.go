package motion

import (
	"time"

	"github.com/cjeanneret/v2mini/internal/logic/actuator"
)

// Snapshot is the loop state after one tick.
type Snapshot struct {
	Tick         uint64                         `json:"tick"`
	Time         time.Time                      `json:"time"`
	Actuators    [actuator.Count]actuator.State `json:"actuators"`
	Pan          int                            `json:"pan"`
	PanTarget    int                            `json:"pan_target"`
	Height       float64                        `json:"height"`
	HeightAngle  int                            `json:"height_angle"`
	HeightDemand int                            `json:"height_demand"`
	Expression   string                         `json:"expression"`
	Row          int                            `json:"row"`
	Emotion      string                         `json:"emotion"`
	Mirroring    bool                           `json:"mirroring"`
	ManualAxis   int                            `json:"manual_axis"`
}

func (c *Controller) snapshot(now time.Time) Snapshot {
	p := c.parts
	return Snapshot{
		Tick:         c.ticks.Load(),
		Time:         now,
		Actuators:    p.Actuators.States(),
		Pan:          p.Pan.Position(),
		PanTarget:    p.Pan.Target(),
		Height:       p.Height.Position(),
		HeightAngle:  p.Height.Angle(),
		HeightDemand: p.Height.Demand(),
		Expression:   p.Face.Current().String(),
		Row:          int(p.Face.Current()),
		Emotion:      p.Face.Emotion().String(),
		Mirroring:    p.Face.Mirroring(),
		ManualAxis:   c.axis,
	}
}
