package bus

import (
	"fmt"
	"io"
	"sync"

	"github.com/cjeanneret/v2mini/internal/debug"
	"go.bug.st/serial"
)

// XL320 control table.
const (
	xlTorqueEnable uint16 = 24
	xlLED          uint16 = 25
	xlGoalPosition uint16 = 30
	xlMovingSpeed  uint16 = 32
)

// XL320 LED codes.
const (
	LEDOff    = 0
	LEDRed    = 1
	LEDGreen  = 2
	LEDYellow = 3
	LEDBlue   = 4
	LEDPurple = 5
	LEDCyan   = 6
	LEDWhite  = 7
)

// XL320 drives one Dynamixel XL-320 over a half-duplex serial line. Writes
// are broadcast without waiting for the status packet; pending input is
// discarded before each write.
type XL320 struct {
	mu    sync.Mutex
	port  io.WriteCloser
	reset func() error
	id    byte
	speed int
	led   int
	open  bool
}

// OpenXL320 opens the servo bus and enables torque on servo id.
func OpenXL320(portName string, baud, id int) (*XL320, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	s := newXL320(port, port.ResetInputBuffer, id)
	if err := s.write(xlTorqueEnable, 1); err != nil {
		port.Close()
		return nil, fmt.Errorf("enable torque on servo %d: %w", id, err)
	}
	debug.Info("XL320 servo %d on %s (%d baud)", id, portName, baud)
	return s, nil
}

func newXL320(w io.WriteCloser, reset func() error, id int) *XL320 {
	return &XL320{port: w, reset: reset, id: byte(id), speed: -1, led: -1, open: true}
}

// SetGoal sets the moving speed when it changed, then the goal position.
// Both are in raw servo units (0..1023).
func (s *XL320) SetGoal(position, speed int) error {
	position = max(0, min(1023, position))
	speed = max(0, min(1023, speed))
	s.mu.Lock()
	defer s.mu.Unlock()
	if speed != s.speed {
		if err := s.write(xlMovingSpeed, le16(speed)...); err != nil {
			return fmt.Errorf("set speed: %w", err)
		}
		s.speed = speed
	}
	if err := s.write(xlGoalPosition, le16(position)...); err != nil {
		return fmt.Errorf("set goal position: %w", err)
	}
	return nil
}

// SetLED sets the servo LED to one of the LED codes.
func (s *XL320) SetLED(code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == s.led {
		return nil
	}
	if err := s.write(xlLED, byte(code&0x07)); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	s.led = code
	return nil
}

// Close disables torque and closes the port.
func (s *XL320) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	if err := s.write(xlTorqueEnable, 0); err != nil {
		debug.Error(fmt.Errorf("disable torque on servo %d: %w", s.id, err))
	}
	s.open = false
	return s.port.Close()
}

func (s *XL320) write(addr uint16, data ...byte) error {
	if !s.open {
		return ErrNotOpen
	}
	if s.reset != nil {
		if err := s.reset(); err != nil {
			return err
		}
	}
	pkt := writePacket(s.id, addr, data...)
	debug.IO("xl320 >", fmt.Sprintf("% X", pkt))
	_, err := s.port.Write(pkt)
	return err
}
