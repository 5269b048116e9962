package expression

import (
	"fmt"
	"time"

	"github.com/cjeanneret/v2mini/internal/debug"
)

// Face puts a pose on the robot. Servo angles and eye color are written
// together as one visual update.
type Face interface {
	Show(p Pose) error
}

// Machine is the expression state machine. Each Update applies, in order
// of precedence: mirror a known emotion, return to neutral once a mirrored
// emotion has been gone for the timeout, hold a mirrored expression, or
// advance one row on a manual toggle edge.
type Machine struct {
	face    Face
	timeout time.Duration
	legacy  bool

	current    Expression
	emotion    Emotion
	mirrored   bool
	lastMirror time.Time
	toggle     int
	pending    bool // unconsumed toggle edge

	shown    Expression
	hasShown bool
}

// NewMachine creates a machine showing Neutral. With legacy set the
// timeout uses the firmware's reversed timestamp subtraction, which
// expires on the first tick after the emotion is lost.
func NewMachine(face Face, timeout time.Duration, legacy bool) *Machine {
	return &Machine{face: face, timeout: timeout, legacy: legacy}
}

// Home shows the neutral expression.
func (m *Machine) Home() error {
	m.current = Neutral
	m.hasShown = false
	return m.show("home")
}

// SetEmotion stores the latest observed emotion.
func (m *Machine) SetEmotion(e Emotion) {
	m.emotion = e
}

// SetToggle stores the manual face-toggle input. Any non-zero value counts
// as pressed. A change from released to pressed is kept as a pending edge
// until the next Update, so a press released before the tick still counts.
func (m *Machine) SetToggle(v int) {
	if v != 0 && m.toggle == 0 {
		m.pending = true
	}
	m.toggle = v
}

// Update runs one step of the state machine.
func (m *Machine) Update(now time.Time) {
	var reason string
	edge := m.pending
	m.pending = false
	switch {
	case m.emotion.Known():
		m.current = m.emotion.Expression()
		m.lastMirror = now
		m.mirrored = true
		reason = "mirror " + m.emotion.String()
	case m.mirrored:
		if !m.expired(now) {
			return
		}
		m.current = Neutral
		m.mirrored = false
		m.lastMirror = time.Time{}
		reason = "timeout"
	default:
		if !edge {
			return
		}
		m.current = m.current.Next()
		reason = "toggle"
	}
	if err := m.show(reason); err != nil {
		debug.Error(err)
	}
}

func (m *Machine) expired(now time.Time) bool {
	elapsed := now.Sub(m.lastMirror)
	if m.legacy {
		return uint32(-elapsed.Milliseconds()) > uint32(m.timeout.Milliseconds())
	}
	return elapsed >= m.timeout
}

func (m *Machine) show(reason string) error {
	if m.hasShown && m.shown == m.current {
		return nil
	}
	debug.Expression(int(m.current), m.current.String(), reason)
	if err := m.face.Show(m.current.Pose()); err != nil {
		return fmt.Errorf("show %s: %w", m.current, err)
	}
	m.shown = m.current
	m.hasShown = true
	return nil
}

// Current returns the selected expression.
func (m *Machine) Current() Expression {
	return m.current
}

// Emotion returns the stored emotion.
func (m *Machine) Emotion() Emotion {
	return m.emotion
}

// Mirroring reports whether a mirrored expression is being held.
func (m *Machine) Mirroring() bool {
	return m.mirrored
}
