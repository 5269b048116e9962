package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/motion"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Hub serves teleoperation sessions on /ws. Clients send commands and
// emotion labels; every published snapshot is pushed back to all of them.
// A client whose send buffer is full is dropped.
type Hub struct {
	intake   *command.Intake
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub feeding intake.
func NewHub(intake *command.Intake) *Hub {
	return &Hub{
		intake: intake,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and runs the session until the peer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error(fmt.Errorf("websocket upgrade: %w", err))
		return
	}
	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	debug.Info("Teleop session %s connected (%d total)", c.id, n)

	h.reply(c, Message{Type: TypeHello, Session: c.id})
	go h.writePump(c)
	h.readPump(c)
}

// Publish pushes s to every session.
func (h *Hub) Publish(s motion.Snapshot) {
	data, err := json.Marshal(Message{Type: TypeTelemetry, Snapshot: &s})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			debug.Info("Teleop session %s too slow, dropping", c.id)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	debug.Info("Teleop session %s disconnected (%d total)", c.id, n)
}

// reply queues m for c unless c has already been dropped.
func (h *Hub) reply(c *client, m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				debug.Error(fmt.Errorf("teleop session %s: %w", c.id, err))
			}
			return
		}
		h.handle(c, data)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handle(c *client, data []byte) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		h.reply(c, Message{Type: TypeError, Error: "invalid JSON"})
		return
	}
	switch m.Type {
	case TypeCommand:
		if m.Command == nil {
			h.reply(c, Message{Type: TypeError, Error: "command message without command"})
			return
		}
		debug.Verbose("Teleop %s command %+v", c.id, *m.Command)
		h.intake.Submit(*m.Command)
	case TypeEmotion:
		e := h.intake.SubmitEmotion(m.Label)
		h.reply(c, Message{Type: TypeEmotion, Emotion: e.String()})
	default:
		h.reply(c, Message{Type: TypeError, Error: fmt.Sprintf("unknown message type %q", m.Type)})
	}
}
