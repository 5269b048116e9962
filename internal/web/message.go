package web

import (
	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/motion"
)

// Websocket message types.
const (
	TypeHello     = "hello"     // server -> client, carries the session id
	TypeCommand   = "command"   // client -> server, carries a command record
	TypeEmotion   = "emotion"   // client -> server label, server -> client decoded emotion
	TypeTelemetry = "telemetry" // server -> client, carries a loop snapshot
	TypeError     = "error"
)

// Message is the JSON envelope exchanged on /ws.
type Message struct {
	Type     string           `json:"type"`
	Session  string           `json:"session,omitempty"`
	Command  *command.Record  `json:"command,omitempty"`
	Label    string           `json:"label,omitempty"`
	Emotion  string           `json:"emotion,omitempty"`
	Snapshot *motion.Snapshot `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
}
