package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// maxBCMPin is the highest GPIO exposed on the Raspberry Pi header.
const maxBCMPin = 27

type piPin struct {
	pin   rpio.Pin
	mode  PinMode
	level Level // last level written, outputs only
}

// PiDriver drives Raspberry Pi GPIOs through go-rpio. Pins must be set up
// before use. Output writes that would not change the pin are skipped.
type PiDriver struct {
	mu   sync.Mutex
	pins map[int]*piPin
}

// NewPiDriver maps the GPIO registers.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewPiDriver() (*PiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")

	return &PiDriver{pins: make(map[int]*piPin)}, nil
}

func (d *PiDriver) SetupPin(pin int, mode PinMode) error {
	if pin < 0 || pin > maxBCMPin {
		return fmt.Errorf("gpio: pin %d outside BCM range 0-%d", pin, maxBCMPin)
	}
	debug.GPIO("SetupPin", pin, mode)

	d.mu.Lock()
	defer d.mu.Unlock()
	p := &piPin{pin: rpio.Pin(pin), mode: mode}
	switch mode {
	case Input:
		p.pin.Input()
		p.pin.PullOff()
	case InputPullUp:
		p.pin.Input()
		p.pin.PullUp()
	case Output:
		p.pin.Output()
		p.pin.Low()
	default:
		return fmt.Errorf("gpio: unknown pin mode %d", mode)
	}
	d.pins[pin] = p
	return nil
}

func (d *PiDriver) WritePin(pin int, level Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pins[pin]
	if !ok || p.mode != Output {
		return fmt.Errorf("gpio: pin %d is not configured as output", pin)
	}
	if p.level == level {
		return nil
	}
	debug.GPIO("WritePin", pin, level)
	if level == High {
		p.pin.High()
	} else {
		p.pin.Low()
	}
	p.level = level
	return nil
}

func (d *PiDriver) ReadPin(pin int) (Level, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pins[pin]
	if !ok || p.mode == Output {
		return Low, fmt.Errorf("gpio: pin %d is not configured as input", pin)
	}
	return p.pin.Read() == rpio.High, nil
}

// Close drives outputs low, returns every pin to a floating input and
// unmaps the registers.
func (d *PiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	d.mu.Lock()
	defer d.mu.Unlock()
	for n, p := range d.pins {
		if p.mode == Output {
			p.pin.Low()
		}
		debug.Verbose("Resetting pin %d to input", n)
		p.pin.Input()
		p.pin.PullOff()
	}
	d.pins = map[int]*piPin{}
	return rpio.Close()
}
