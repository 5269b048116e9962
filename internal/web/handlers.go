package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/motion"
)

// maxBodyBytes bounds command and emotion request bodies.
const maxBodyBytes = 4096

// Limits describes the robot's travel, served to the control page.
type Limits struct {
	PeriodMs    int            `json:"period_ms"`
	PanMin      int            `json:"pan_min"`
	PanMax      int            `json:"pan_max"`
	HeightMin   float64        `json:"height_min"`
	HeightMax   float64        `json:"height_max"`
	Actuators   []ActuatorSpan `json:"actuators"`
	Expressions []string       `json:"expressions"`
}

// ActuatorSpan is the target range of one actuator.
type ActuatorSpan struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Loop exposes the control loop's read side.
type Loop interface {
	Latest() *motion.Snapshot
	Ticks() uint64
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Intake      *command.Intake
	Loop        Loop
	Limits      Limits
	Hub         *Hub
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If loop is nil, /status returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, intake *command.Intake, loop Loop, limits Limits, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Intake:      intake,
		Loop:        loop,
		Limits:      limits,
		Hub:         NewHub(intake),
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HandleConfig returns the travel limits as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Limits)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /command. The record replaces any command the
// loop has not taken yet.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rec command.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	h.Intake.Submit(rec)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// EmotionRequest is the body of POST /emotion.
type EmotionRequest struct {
	Label string `json:"label"`
}

// EmotionResponse reports how a label was decoded.
type EmotionResponse struct {
	Emotion string `json:"emotion"`
	Known   bool   `json:"known"`
}

// HandleEmotion handles POST /emotion. Unrecognized labels are accepted and
// decoded as unknown.
func (h *Handlers) HandleEmotion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EmotionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	e := h.Intake.SubmitEmotion(req.Label)
	writeJSON(w, http.StatusAccepted, EmotionResponse{Emotion: e.String(), Known: e.Known()})
}

// HandleStatus returns the latest loop snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Loop == nil {
		http.Error(w, "control loop not running", http.StatusServiceUnavailable)
		return
	}
	s := h.Loop.Latest()
	if s == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Health is the body of GET /healthz.
type Health struct {
	Ticks    uint64        `json:"ticks"`
	Intake   command.Stats `json:"intake"`
	Sessions int           `json:"sessions"`
	Streams  int           `json:"streams"`
}

// HandleHealth reports loop and intake counters.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var hl Health
	if h.Loop != nil {
		hl.Ticks = h.Loop.Ticks()
	}
	hl.Intake = h.Intake.Stats()
	hl.Sessions = h.Hub.Count()
	hl.Streams = h.Broadcaster.Clients()
	writeJSON(w, http.StatusOK, hl)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
