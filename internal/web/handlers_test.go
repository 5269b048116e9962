package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/motion"
	"github.com/gorilla/websocket"
)

type fakeLoop struct {
	snap  *motion.Snapshot
	ticks uint64
}

func (f *fakeLoop) Latest() *motion.Snapshot { return f.snap }
func (f *fakeLoop) Ticks() uint64            { return f.ticks }

func testLimits() Limits {
	return Limits{
		PeriodMs:    25,
		PanMin:      357,
		PanMax:      665,
		HeightMin:   70,
		HeightMax:   120,
		Actuators:   []ActuatorSpan{{Name: "wrist", Min: 200, Max: 800}},
		Expressions: []string{"Neutral", "Sad"},
	}
}

func newTestHandlers(loop Loop) (*Handlers, *command.Intake) {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	in := command.NewIntake()
	return NewHandlers(NewStatusBroadcaster(), in, loop, testLimits(), staticFS), in
}

func newTestServer(t *testing.T, loop Loop) (*Server, *command.Intake, *httptest.Server) {
	t.Helper()
	h, in := newTestHandlers(loop)
	s := &Server{handlers: h}
	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return s, in, ts
}

// ---------- HandleCommand ----------

func TestHandleCommand_Queued(t *testing.T) {
	h, in := newTestHandlers(nil)
	body := `{"face":1,"height":-1,"head_tilt":600,"pan":700,"wrist":3,"gripper":-2}`
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleCommand(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	rec, ok := in.Take()
	if !ok {
		t.Fatal("no record queued")
	}
	want := command.Record{Face: 1, Height: -1, HeadTilt: 600, Pan: 700, Wrist: 3, Gripper: -2}
	if rec != want {
		t.Errorf("record = %+v, want %+v", rec, want)
	}
}

func TestHandleCommand_LastWriteWins(t *testing.T) {
	h, in := newTestHandlers(nil)
	for _, pan := range []string{"400", "500", "600"} {
		req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(`{"pan":`+pan+`}`))
		h.HandleCommand(httptest.NewRecorder(), req)
	}
	rec, _ := in.Take()
	if rec.Pan != 600 {
		t.Errorf("pan = %d, want 600", rec.Pan)
	}
	if st := in.Stats(); st.Received != 3 || st.Overwritten != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestHandleCommand_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid_json", http.MethodPost, "{not json", http.StatusBadRequest},
		{"unknown_field", http.MethodPost, `{"elbow":3}`, http.StatusBadRequest},
		{"wrong_type", http.MethodPost, `{"pan":"left"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, in := newTestHandlers(nil)
			req := httptest.NewRequest(tc.method, "/command", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			h.HandleCommand(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if _, ok := in.Take(); ok {
				t.Error("rejected request queued a record")
			}
		})
	}
}

// ---------- HandleEmotion ----------

func TestHandleEmotion(t *testing.T) {
	cases := []struct {
		label, want string
		known       bool
	}{
		{"HAPPY", "HAPPY", true},
		{"CONFUSED", "CONFUSED", true},
		{"SURPRISED", "UNKNOWN", false},
		{"happy", "UNKNOWN", false},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			h, in := newTestHandlers(nil)
			req := httptest.NewRequest(http.MethodPost, "/emotion", strings.NewReader(`{"label":"`+tc.label+`"}`))
			w := httptest.NewRecorder()
			h.HandleEmotion(w, req)

			if w.Code != http.StatusAccepted {
				t.Fatalf("status = %d", w.Code)
			}
			var resp EmotionResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Emotion != tc.want || resp.Known != tc.known {
				t.Errorf("response = %+v, want %s/%v", resp, tc.want, tc.known)
			}
			if in.Emotion().String() != tc.want {
				t.Errorf("intake emotion = %s", in.Emotion())
			}
		})
	}
}

// ---------- status, health, config, index ----------

func TestHandleStatus(t *testing.T) {
	h, _ := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status without loop = %d", w.Code)
	}

	loop := &fakeLoop{}
	h, _ = newTestHandlers(loop)
	w = httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status before first tick = %d", w.Code)
	}

	loop.snap = &motion.Snapshot{Tick: 7, Pan: 511, Expression: "Neutral"}
	w = httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	var got motion.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tick != 7 || got.Pan != 511 || got.Expression != "Neutral" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestHandleHealth(t *testing.T) {
	h, in := newTestHandlers(&fakeLoop{ticks: 40})
	in.Submit(command.Record{})
	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var hl Health
	if err := json.NewDecoder(w.Body).Decode(&hl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hl.Ticks != 40 || hl.Intake.Received != 1 {
		t.Errorf("health = %+v", hl)
	}
}

func TestHandleConfig(t *testing.T) {
	h, _ := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleConfig(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got Limits
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PanMin != 357 || got.PanMax != 665 || len(got.Actuators) != 1 {
		t.Errorf("limits = %+v", got)
	}
}

func TestServeIndex(t *testing.T) {
	h, _ := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), command.NewIntake(), nil, Limits{}, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNewServer_EmbeddedIndex(t *testing.T) {
	s, err := NewServer(":0", NewStatusBroadcaster(), command.NewIntake(), nil, testLimits())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	w := httptest.NewRecorder()
	s.Mux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "v2mini") {
		t.Errorf("index status = %d", w.Code)
	}
}

// ---------- routing ----------

func TestMux_Routes(t *testing.T) {
	_, _, ts := newTestServer(t, &fakeLoop{})

	resp, err := http.Get(ts.URL + "/command")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /command = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope = %d", resp.StatusCode)
	}
}

// ---------- SSE ----------

func TestStatusStream_ReceivesTelemetry(t *testing.T) {
	s, _, ts := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q", line)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.handlers.Broadcaster.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Publish(motion.Snapshot{Tick: 3, Expression: "Happy"})

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt StatusEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Kind != KindTelemetry || evt.Snapshot.Tick != 3 {
			t.Errorf("event = %+v", evt)
		}
		return
	}
}

// ---------- websocket ----------

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestHub_Session(t *testing.T) {
	s, in, ts := newTestServer(t, nil)
	conn := dialWS(t, ts)

	hello := readMsg(t, conn)
	if hello.Type != TypeHello || len(hello.Session) != 36 {
		t.Fatalf("hello = %+v", hello)
	}

	if err := conn.WriteJSON(Message{Type: TypeEmotion, Label: "ANGRY"}); err != nil {
		t.Fatal(err)
	}
	if m := readMsg(t, conn); m.Type != TypeEmotion || m.Emotion != "ANGRY" {
		t.Errorf("emotion reply = %+v", m)
	}

	rec := command.Record{Pan: 640, Wrist: 2}
	if err := conn.WriteJSON(Message{Type: TypeCommand, Command: &rec}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	var got command.Record
	var ok bool
	for !ok && time.Now().Before(deadline) {
		got, ok = in.Take()
		time.Sleep(5 * time.Millisecond)
	}
	if !ok || got != rec {
		t.Errorf("queued = %+v (%v), want %+v", got, ok, rec)
	}

	s.Publish(motion.Snapshot{Tick: 9})
	if m := readMsg(t, conn); m.Type != TypeTelemetry || m.Snapshot == nil || m.Snapshot.Tick != 9 {
		t.Errorf("telemetry = %+v", m)
	}
}

func TestHub_BadMessages(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	conn := dialWS(t, ts)
	readMsg(t, conn)

	for _, raw := range []string{"{oops", `{"type":"command"}`, `{"type":"dance"}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatal(err)
		}
		if m := readMsg(t, conn); m.Type != TypeError || m.Error == "" {
			t.Errorf("%s: reply = %+v, want error", raw, m)
		}
	}
}

func TestHub_CountTracksSessions(t *testing.T) {
	s, _, ts := newTestServer(t, nil)
	conn := dialWS(t, ts)
	readMsg(t, conn)
	if n := s.handlers.Hub.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.handlers.Hub.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := s.handlers.Hub.Count(); n != 0 {
		t.Errorf("Count() after close = %d, want 0", n)
	}
}
