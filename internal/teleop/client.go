// Package teleop is the operator side of the /ws session: it sends motion
// commands and emotion labels to a running robot and receives its
// telemetry.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/motion"
	"github.com/cjeanneret/v2mini/internal/web"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("teleop: connection closed")

// Client is one teleoperation session.
type Client struct {
	conn    *websocket.Conn
	session string

	writeMu sync.Mutex

	telemetry chan motion.Snapshot
	emotions  chan string
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// WSURL turns a robot address ("host:port", "http://host:port" or a ws URL)
// into the /ws endpoint URL.
func WSURL(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid robot address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid robot address %q: missing host", addr)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Dial connects to the robot at addr and waits for the session greeting.
func Dial(ctx context.Context, addr string) (*Client, error) {
	wsURL, err := WSURL(addr)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	var hello web.Message
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if hello.Type != web.TypeHello {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", hello.Type)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:      conn,
		session:   hello.Session,
		telemetry: make(chan motion.Snapshot, 16),
		emotions:  make(chan string, 4),
		done:      make(chan struct{}),
	}
	debug.Info("Teleop session %s on %s", c.session, wsURL)
	go c.readLoop()
	return c, nil
}

// Session returns the id the robot assigned to this session.
func (c *Client) Session() string { return c.session }

// Telemetry delivers robot snapshots. When the consumer falls behind, the
// oldest pending snapshot is dropped. The channel closes with the session.
func (c *Client) Telemetry() <-chan motion.Snapshot { return c.telemetry }

// Emotions delivers the robot's decoding of each label sent.
func (c *Client) Emotions() <-chan string { return c.emotions }

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the session, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send submits a command record.
func (c *Client) Send(r command.Record) error {
	return c.write(web.Message{Type: web.TypeCommand, Command: &r})
}

// SendEmotion submits an emotion label.
func (c *Client) SendEmotion(label string) error {
	return c.write(web.Message{Type: web.TypeEmotion, Label: label})
}

// Close ends the session.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) write(m web.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("send %s: %w", m.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		close(c.telemetry)
		close(c.emotions)
		close(c.done)
	}()
	for {
		var m web.Message
		if err := c.conn.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
			}
			return
		}
		switch m.Type {
		case web.TypeTelemetry:
			if m.Snapshot != nil {
				c.deliver(*m.Snapshot)
			}
		case web.TypeEmotion:
			select {
			case c.emotions <- m.Emotion:
			default:
			}
		case web.TypeError:
			debug.Error(fmt.Errorf("robot rejected message: %s", m.Error))
		}
	}
}

func (c *Client) deliver(s motion.Snapshot) {
	for {
		select {
		case c.telemetry <- s:
			return
		default:
		}
		select {
		case <-c.telemetry:
		default:
		}
	}
}
