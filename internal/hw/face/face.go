// Package face puts expression poses on the hardware: the RGB eye on GPIO
// pins, the five face servos on the motor board and the neck servo LED.
package face

import (
	"fmt"

	"github.com/cjeanneret/v2mini/internal/hw/gpio"
	"github.com/cjeanneret/v2mini/internal/logic/expression"
	"go.uber.org/multierr"
)

// servoOrder is the order the face servos are written in.
var servoOrder = [expression.NumServos]int{1, 3, 0, 2, 4}

// ServoWriter moves a hobby servo to an angle in degrees.
type ServoWriter interface {
	WriteServo(servo, deg int) error
}

// LED sets a status LED color code.
type LED interface {
	SetLED(code int) error
}

// Face drives the expression hardware.
type Face struct {
	servos   ServoWriter
	channels [expression.NumServos]int
	gpio     gpio.Driver
	eye      [3]int
	led      LED
	ledCode  int
}

// New configures the eye pins as outputs. led may be nil.
func New(servos ServoWriter, channels []int, drv gpio.Driver, eyePins []int, led LED, ledCode int) (*Face, error) {
	if len(channels) != expression.NumServos {
		return nil, fmt.Errorf("face: expected %d servo channels, got %d", expression.NumServos, len(channels))
	}
	if len(eyePins) != 3 {
		return nil, fmt.Errorf("face: expected 3 eye pins, got %d", len(eyePins))
	}
	f := &Face{servos: servos, gpio: drv, led: led, ledCode: ledCode}
	copy(f.channels[:], channels)
	copy(f.eye[:], eyePins)
	for _, pin := range f.eye {
		if err := drv.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup eye pin %d: %w", pin, err)
		}
	}
	return f, nil
}

// Show writes the eye color, then the servos, then the neck LED. Every
// write is attempted; the errors are combined.
func (f *Face) Show(p expression.Pose) error {
	c := p.EyeColor()
	var err error
	for i, on := range []bool{c.R, c.G, c.B} {
		err = multierr.Append(err, f.gpio.WritePin(f.eye[i], gpio.Level(on)))
	}
	for _, s := range servoOrder {
		err = multierr.Append(err, f.servos.WriteServo(f.channels[s], p.Angles[s]))
	}
	if f.led != nil {
		err = multierr.Append(err, f.led.SetLED(f.ledCode))
	}
	return err
}
