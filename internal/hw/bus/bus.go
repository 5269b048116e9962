// Package bus drives the neck pan servo: a Dynamixel XL-320 as on the
// original robot, a Feetech STS servo, or an in-memory mock.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/v2mini/internal/config"
	"github.com/cjeanneret/v2mini/internal/debug"
	"go.bug.st/serial"
)

// ErrNotOpen is returned when writing to a closed servo.
var ErrNotOpen = errors.New("bus: servo not open")

// Servo is a position-controlled bus servo.
type Servo interface {
	SetGoal(position, speed int) error
	Close() error
}

// LED is implemented by servos with a status LED.
type LED interface {
	SetLED(code int) error
}

// Open creates the pan servo selected by cfg.Bus.
func Open(cfg config.PanConfig) (Servo, error) {
	switch cfg.Bus {
	case config.BusMock:
		debug.Info("Using MOCK pan servo")
		return NewMock(), nil
	case config.BusXL320:
		return OpenXL320(cfg.Port, cfg.Baud, cfg.ServoID)
	case config.BusFeetech:
		return OpenFeetech(cfg.Port, cfg.Baud, cfg.ServoID)
	default:
		return nil, fmt.Errorf("unsupported pan bus: %s", cfg.Bus)
	}
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Mock records goals and LED codes.
type Mock struct {
	mu     sync.Mutex
	goals  []int
	speed  int
	led    int
	closed bool
}

// NewMock creates a mock servo with the LED off.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) SetGoal(position, speed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	m.goals = append(m.goals, position)
	m.speed = speed
	return nil
}

func (m *Mock) SetLED(code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	m.led = code
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Goal returns the last goal position, or -1 before the first one.
func (m *Mock) Goal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.goals) == 0 {
		return -1
	}
	return m.goals[len(m.goals)-1]
}

// Speed returns the last speed sent.
func (m *Mock) Speed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// LEDCode returns the last LED code.
func (m *Mock) LEDCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.led
}
