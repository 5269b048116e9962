package motorboard

import (
	"sync"

	"github.com/cjeanneret/v2mini/internal/debug"
)

// PlantChannel couples a motor channel to the potentiometer it moves.
type PlantChannel struct {
	Motor    int
	Pin      int
	Position int // starting reading
}

// Mock is an in-memory motor board with a crude actuator plant: every
// analog read of a coupled pin moves its reading by the drive of the motor,
// scaled by Gain. A positive drive lowers the reading. Servo angles are
// recorded for inspection.
type Mock struct {
	mu     sync.Mutex
	gain   float64
	motors map[int]int
	servos map[int]int
	pins   map[int]float64
	motor  map[int]int // pin -> motor
	closed bool
}

// NewMock creates a simulated board. gain is the reading change per read
// at full drive.
func NewMock(gain float64, channels ...PlantChannel) *Mock {
	m := &Mock{
		gain:   gain,
		motors: make(map[int]int),
		servos: make(map[int]int),
		pins:   make(map[int]float64),
		motor:  make(map[int]int),
	}
	for _, c := range channels {
		m.pins[c.Pin] = float64(c.Position)
		m.motor[c.Pin] = c.Motor
	}
	debug.Info("Using MOCK motor board (%d simulated actuators)", len(channels))
	return m
}

func (m *Mock) SetMotor(motor, speed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	m.motors[motor] = max(-255, min(255, speed))
	return nil
}

func (m *Mock) WriteServo(servo, deg int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	m.servos[servo] = max(0, min(180, deg))
	return nil
}

func (m *Mock) AnalogRead(pin int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrNotOpen
	}
	v := m.pins[pin]
	if motor, ok := m.motor[pin]; ok {
		v -= float64(m.motors[motor]) / 255 * m.gain
		v = max(0, min(1023, v))
		m.pins[pin] = v
	}
	return int(v), nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	m.closed = true
	return nil
}

// Motor returns the last drive sent to a motor channel.
func (m *Mock) Motor(motor int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.motors[motor]
}

// Servo returns the last angle written to a servo channel.
func (m *Mock) Servo(servo int) (deg int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deg, ok = m.servos[servo]
	return deg, ok
}

// SetPin forces an analog reading.
func (m *Mock) SetPin(pin, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[pin] = float64(value)
}
