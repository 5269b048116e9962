// Package motorboard talks to the motor/ADC co-processor over a serial
// line. The board runs the motor shield, the hobby servos and the analog
// inputs; the host sends one text command per line:
//
//	1 <motor> <speed>   signed drive, -255..255, 0 releases the motor
//	2 <servo> <deg>     servo angle 0..180
//	3 <pin>             analog read, answered by one line holding 0..1023
//
// After opening the port the board prints "init" then "start".
package motorboard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/tarm/serial"
	"go.uber.org/multierr"
)

// ErrNotOpen is returned by every operation on a closed board.
var ErrNotOpen = errors.New("motorboard: not open")

// ErrTimeout is returned when the board does not answer in time.
var ErrTimeout = errors.New("motorboard: reply timeout")

const (
	// ReplyTimeout bounds the wait for one analog reply. Four silent
	// reads still fit in a 25 ms tick.
	ReplyTimeout = 5 * time.Millisecond

	handshakeTimeout = 3 * time.Second

	// portPoll is the serial read timeout. The reader goroutine wakes at
	// this rate on an idle line to notice Close.
	portPoll = 100 * time.Millisecond
)

// Link is the set of board operations the control loop needs.
type Link interface {
	SetMotor(motor, speed int) error
	WriteServo(servo, deg int) error
	AnalogRead(pin int) (int, error)
	Close() error
}

// Board is a serial-connected motor board. Motor and servo writes that
// repeat the last value are not sent again. Replies are collected by a
// reader goroutine so a silent board costs at most the reply timeout.
type Board struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	w      *bufio.Writer
	motors map[int]int
	servos map[int]int

	replyTimeout time.Duration
	lines        chan string
	readErr      error // set before lines is closed
	closed       atomic.Bool
}

// Open opens the serial port and waits for the board banner.
func Open(port string, baud int) (*Board, error) {
	debug.Info("Opening motor board on %s (%d baud)", port, baud)
	p, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: portPoll,
	})
	if err != nil {
		return nil, fmt.Errorf("open motor board %s: %w", port, err)
	}
	// tarm/serial reports an idle read timeout as io.EOF.
	return newBoard(p, true)
}

// New wraps an already open stream and waits for the board banner.
// The stream is closed if the handshake fails. End of stream is final.
func New(rw io.ReadWriteCloser) (*Board, error) {
	return newBoard(rw, false)
}

func newBoard(rw io.ReadWriteCloser, idleEOF bool) (*Board, error) {
	b := &Board{
		port:         rw,
		w:            bufio.NewWriter(rw),
		motors:       make(map[int]int),
		servos:       make(map[int]int),
		replyTimeout: ReplyTimeout,
		lines:        make(chan string, 8),
	}
	go b.readLoop(bufio.NewReader(rw), idleEOF)
	for _, want := range []string{"init", "start"} {
		ln, err := b.reply(handshakeTimeout)
		if err != nil {
			b.closed.Store(true)
			rw.Close()
			return nil, fmt.Errorf("motor board handshake: %w", err)
		}
		if ln != want {
			b.closed.Store(true)
			rw.Close()
			return nil, fmt.Errorf("motor board handshake: expected %q but got %q", want, ln)
		}
	}
	debug.Verbose("Motor board ready")
	return b, nil
}

// SetMotor drives a shield channel. speed is clamped to -255..255.
func (b *Board) SetMotor(motor, speed int) error {
	speed = max(-255, min(255, speed))
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return ErrNotOpen
	}
	if old, ok := b.motors[motor]; ok && old == speed {
		return nil
	}
	if err := b.send(fmt.Sprintf("1 %d %d", motor, speed)); err != nil {
		return fmt.Errorf("set motor %d: %w", motor, err)
	}
	b.motors[motor] = speed
	return nil
}

// WriteServo moves a hobby servo. deg is clamped to 0..180.
func (b *Board) WriteServo(servo, deg int) error {
	deg = max(0, min(180, deg))
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return ErrNotOpen
	}
	if old, ok := b.servos[servo]; ok && old == deg {
		return nil
	}
	if err := b.send(fmt.Sprintf("2 %d %d", servo, deg)); err != nil {
		return fmt.Errorf("write servo %d: %w", servo, err)
	}
	b.servos[servo] = deg
	return nil
}

// AnalogRead samples an analog input. It waits at most the reply timeout;
// a reply arriving later is discarded by the next read.
func (b *Board) AnalogRead(pin int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return 0, ErrNotOpen
	}
	b.dropStale()
	if err := b.send(fmt.Sprintf("3 %d", pin)); err != nil {
		return 0, fmt.Errorf("analog read %d: %w", pin, err)
	}
	ln, err := b.reply(b.replyTimeout)
	if err != nil {
		return 0, fmt.Errorf("analog read %d: %w", pin, err)
	}
	v, err := strconv.Atoi(ln)
	if err != nil {
		return 0, fmt.Errorf("analog read %d: bad reply %q", pin, ln)
	}
	if v < 0 || v > 1023 {
		return 0, fmt.Errorf("analog read %d: value %d out of range", pin, v)
	}
	return v, nil
}

// Close releases every motor that was driven and closes the port.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return ErrNotOpen
	}
	var err error
	for m, s := range b.motors {
		if s != 0 {
			err = multierr.Append(err, b.send(fmt.Sprintf("1 %d 0", m)))
		}
	}
	b.closed.Store(true)
	err = multierr.Append(err, b.port.Close())
	b.port = nil
	return err
}

func (b *Board) send(line string) error {
	debug.IO("motorboard >", line)
	if _, err := b.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return b.w.Flush()
}

// readLoop forwards complete reply lines until the stream fails. With
// idleEOF set, io.EOF is an idle read timeout rather than end of stream.
func (b *Board) readLoop(r *bufio.Reader, idleEOF bool) {
	defer close(b.lines)
	var partial []byte
	for {
		chunk, err := r.ReadBytes('\n')
		partial = append(partial, chunk...)
		switch {
		case err == nil:
			ln := strings.TrimSpace(string(partial))
			partial = partial[:0]
			debug.IO("motorboard <", ln)
			select {
			case b.lines <- ln:
			default:
				debug.Verbose("motorboard: dropping unread reply %q", ln)
			}
		case idleEOF && errors.Is(err, io.EOF) && !b.closed.Load():
			// idle line, keep any partial reply
		default:
			if b.closed.Load() {
				err = ErrNotOpen
			}
			b.readErr = err
			return
		}
	}
}

// reply waits for the next line from the board.
func (b *Board) reply(timeout time.Duration) (string, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ln, ok := <-b.lines:
		if !ok {
			return "", b.readErr
		}
		return ln, nil
	case <-t.C:
		return "", ErrTimeout
	}
}

// dropStale discards replies that arrived after their read timed out.
func (b *Board) dropStale() {
	for {
		select {
		case ln, ok := <-b.lines:
			if !ok {
				return
			}
			debug.Verbose("motorboard: discarding late reply %q", ln)
		default:
			return
		}
	}
}
