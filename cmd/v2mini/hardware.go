package main

import (
	"fmt"

	"github.com/cjeanneret/v2mini/internal/config"
	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/cjeanneret/v2mini/internal/hw/motorboard"
	"github.com/cjeanneret/v2mini/internal/logic/actuator"
)

// mockPlantGain is how far a simulated actuator moves per read at full drive.
const mockPlantGain = 2

// boardActuators maps actuator channels onto motor board motors and analog
// pins.
type boardActuators struct {
	link motorboard.Link
	cfg  []config.ActuatorConfig
}

func (b *boardActuators) ReadPosition(id actuator.ID) (int, error) {
	return b.link.AnalogRead(b.cfg[id].AnalogPin)
}

func (b *boardActuators) Apply(id actuator.ID, d actuator.Drive) error {
	speed := 0
	switch d.Dir {
	case actuator.Forward:
		speed = int(d.Speed)
	case actuator.Backward:
		speed = -int(d.Speed)
	}
	return b.link.SetMotor(b.cfg[id].Motor, speed)
}

// boardServo is one hobby servo channel on the motor board.
type boardServo struct {
	link    motorboard.Link
	channel int
}

func (s boardServo) WriteAngle(deg int) error {
	return s.link.WriteServo(s.channel, deg)
}

// openBoard opens the motor board, or a simulated one whose actuators start
// mid-travel.
func openBoard(cfg *config.Config) (motorboard.Link, error) {
	if cfg.MotorBoard.Mock {
		channels := make([]motorboard.PlantChannel, len(cfg.Actuators))
		for i, a := range cfg.Actuators {
			channels[i] = motorboard.PlantChannel{Motor: a.Motor, Pin: a.AnalogPin, Position: (a.Min + a.Max) / 2}
		}
		return motorboard.NewMock(mockPlantGain, channels...), nil
	}
	b, err := motorboard.Open(cfg.MotorBoard.Port, cfg.MotorBoard.Baud)
	if err != nil {
		return nil, fmt.Errorf("open motor board: %w", err)
	}
	return b, nil
}

func actuatorParams(cfg *config.Config) []actuator.Params {
	params := make([]actuator.Params, len(cfg.Actuators))
	for i, a := range cfg.Actuators {
		params[i] = actuator.Params{
			Name:          a.Name,
			Min:           a.Min,
			Max:           a.Max,
			InitialTarget: a.InitialTarget,
			Kp:            a.Kp,
			Ki:            a.Ki,
			Kd:            a.Kd,
		}
		debug.PrintStruct(fmt.Sprintf("Actuator %d", i), a)
	}
	return params
}

func actuatorSettings(cfg *config.Config) actuator.Settings {
	return actuator.Settings{
		Window:      cfg.Filter.Window,
		SampleTime:  cfg.SampleTime(),
		OutputLimit: cfg.PID.OutputLimit,
		Deadband:    cfg.PID.Deadband,
		StallTicks:  cfg.PID.StallTicks,
	}
}
