package expression

import (
	"errors"
	"testing"
	"time"
)

type recordingFace struct {
	poses []Pose
	err   error
}

func (f *recordingFace) Show(p Pose) error {
	if f.err != nil {
		return f.err
	}
	f.poses = append(f.poses, p)
	return nil
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestValidateTable(t *testing.T) {
	if err := ValidateTable(); err != nil {
		t.Fatal(err)
	}
}

func TestPose_OutOfRange(t *testing.T) {
	if got := Expression(42).Pose(); got != table[Neutral] {
		t.Errorf("Pose() for invalid row = %+v, want neutral", got)
	}
	if (Pose{Eye: 9}).EyeColor() != (Color{}) {
		t.Error("out-of-palette eye should be off")
	}
	if (Pose{Eye: 4}).EyeColor() != (Color{R: true, B: true}) {
		t.Error("eye 4 should be magenta")
	}
}

func TestDecodeEmotion(t *testing.T) {
	cases := []struct {
		label string
		want  Emotion
	}{
		{"HAPPY", EmotionHappy},
		{"SAD", EmotionSad},
		{"CONFUSED", EmotionConfused},
		{"ANGRY", EmotionAngry},
		{"SURPRISED", EmotionUnknown},
		{"happy", EmotionUnknown},
		{" HAPPY", EmotionUnknown},
		{"", EmotionUnknown},
		{"NEUTRAL", EmotionUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			if got := DecodeEmotion(tc.label); got != tc.want {
				t.Errorf("DecodeEmotion(%q) = %v, want %v", tc.label, got, tc.want)
			}
		})
	}
}

func TestEmotion_MirrorRows(t *testing.T) {
	cases := map[Emotion]Expression{
		EmotionSad:      Sad,
		EmotionHappy:    Happy,
		EmotionAngry:    Angry,
		EmotionConfused: Uncertain,
		EmotionUnknown:  Neutral,
	}
	for e, want := range cases {
		if got := e.Expression(); got != want {
			t.Errorf("%v.Expression() = %v, want %v", e, got, want)
		}
	}
}

func TestMachine_ToggleCycles(t *testing.T) {
	for _, n := range []int{1, 5, 6, 7, 13} {
		face := &recordingFace{}
		m := NewMachine(face, 20*time.Second, false)
		tick := 0
		for i := 0; i < n; i++ {
			// Holding the toggle for several ticks counts once.
			m.SetToggle(1)
			for j := 0; j < 3; j++ {
				m.Update(at(25 * tick))
				tick++
			}
			m.SetToggle(0)
			m.Update(at(25 * tick))
			tick++
		}
		if want := Expression(n % Count); m.Current() != want {
			t.Errorf("%d edges: Current() = %v, want %v", n, m.Current(), want)
		}
	}
}

func TestMachine_ShortPressBetweenUpdates(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	for i := 0; i < 3; i++ {
		m.SetToggle(1)
		m.SetToggle(0)
		m.Update(at(25 * i))
	}
	if m.Current() != Angry {
		t.Errorf("Current() = %v, want angry after three short presses", m.Current())
	}

	// Repeating the pressed level is not a new edge.
	m.SetToggle(1)
	m.SetToggle(1)
	m.Update(at(100))
	m.SetToggle(1)
	m.Update(at(125))
	if m.Current() != Interested {
		t.Errorf("Current() = %v, want interested", m.Current())
	}
}

func TestMachine_EdgeDuringMirrorDiscarded(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	m.SetEmotion(EmotionSad)
	m.Update(at(0))
	m.SetEmotion(EmotionUnknown)
	m.SetToggle(1)
	m.SetToggle(0)
	m.Update(at(25))
	m.Update(at(20025))
	if m.Current() != Neutral {
		t.Fatalf("Current() = %v, want neutral after timeout", m.Current())
	}
	m.Update(at(20050))
	if m.Current() != Neutral {
		t.Errorf("edge seen while mirroring advanced to %v", m.Current())
	}
}

func TestMachine_ToggleShowsPose(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	m.SetToggle(-1)
	m.Update(at(0))
	if len(face.poses) != 1 || face.poses[0] != table[Sad] {
		t.Fatalf("poses = %+v, want [sad]", face.poses)
	}
	m.Update(at(25))
	if len(face.poses) != 1 {
		t.Errorf("held toggle wrote %d poses", len(face.poses))
	}
}

func TestMachine_MirrorTakesPrecedence(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	m.SetToggle(1)
	m.SetEmotion(EmotionHappy)
	m.Update(at(0))
	if m.Current() != Happy {
		t.Fatalf("Current() = %v, want happy", m.Current())
	}
	if !m.Mirroring() {
		t.Error("expected mirroring")
	}

	// The toggle is ignored while mirroring and while holding.
	m.SetToggle(0)
	m.Update(at(25))
	m.SetToggle(1)
	m.Update(at(50))
	if m.Current() != Happy {
		t.Errorf("toggle changed mirrored expression to %v", m.Current())
	}
	if len(face.poses) != 1 {
		t.Errorf("repeated mirror wrote %d poses, want 1", len(face.poses))
	}
}

func TestMachine_MirrorFollowsEmotion(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	m.SetEmotion(EmotionSad)
	m.Update(at(0))
	m.SetEmotion(EmotionConfused)
	m.Update(at(25))
	if m.Current() != Uncertain {
		t.Errorf("Current() = %v, want uncertain", m.Current())
	}
	if len(face.poses) != 2 || face.poses[1] != table[Uncertain] {
		t.Errorf("poses = %+v", face.poses)
	}
}

func TestMachine_SurprisedFallsThroughToToggle(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	m.SetEmotion(DecodeEmotion("SURPRISED"))
	m.SetToggle(1)
	m.Update(at(0))
	if m.Mirroring() {
		t.Error("SURPRISED must not be mirrored")
	}
	if m.Current() != Sad {
		t.Errorf("Current() = %v, want the toggled row sad", m.Current())
	}
}

func TestMachine_Timeout(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	m.SetEmotion(EmotionAngry)
	m.Update(at(1000))
	m.SetEmotion(EmotionUnknown)

	m.Update(at(1000 + 19999))
	if m.Current() != Angry || !m.Mirroring() {
		t.Fatalf("expression released before timeout: %v", m.Current())
	}

	m.Update(at(1000 + 20000))
	if m.Current() != Neutral {
		t.Errorf("Current() after timeout = %v, want neutral", m.Current())
	}
	if m.Mirroring() {
		t.Error("timestamp should be cleared after timeout")
	}
	if last := face.poses[len(face.poses)-1]; last != table[Neutral] {
		t.Errorf("last pose = %+v, want neutral", last)
	}

	// Manual cycling resumes from neutral.
	m.SetToggle(1)
	m.Update(at(1000 + 20025))
	if m.Current() != Sad {
		t.Errorf("Current() after toggle = %v, want sad", m.Current())
	}
}

func TestMachine_TimeoutCountsFromLastSighting(t *testing.T) {
	m := NewMachine(&recordingFace{}, 20*time.Second, false)
	m.SetEmotion(EmotionHappy)
	for ms := 0; ms <= 30000; ms += 25 {
		m.Update(at(ms))
	}
	m.SetEmotion(EmotionUnknown)
	m.Update(at(45000))
	if m.Current() != Happy {
		t.Errorf("released %v after 15 s without the emotion", m.Current())
	}
	m.Update(at(50000))
	if m.Current() != Neutral {
		t.Errorf("Current() = %v, want neutral", m.Current())
	}
}

func TestMachine_LegacyTimeoutCompare(t *testing.T) {
	m := NewMachine(&recordingFace{}, 20*time.Second, true)
	m.SetEmotion(EmotionSad)
	m.Update(at(1000))
	m.SetEmotion(EmotionUnknown)

	// Same timestamp: the reversed subtraction yields zero.
	m.Update(at(1000))
	if m.Current() != Sad {
		t.Fatalf("Current() = %v, want sad", m.Current())
	}
	// One tick later the reversed subtraction wraps and fires immediately.
	m.Update(at(1025))
	if m.Current() != Neutral {
		t.Errorf("legacy compare: Current() = %v, want neutral", m.Current())
	}
}

func TestMachine_Home(t *testing.T) {
	face := &recordingFace{}
	m := NewMachine(face, 20*time.Second, false)
	if err := m.Home(); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if len(face.poses) != 1 || face.poses[0] != table[Neutral] {
		t.Errorf("poses = %+v, want [neutral]", face.poses)
	}

	face.err = errors.New("bus down")
	if err := m.Home(); err == nil {
		t.Error("Home should report the face error")
	}
}

func TestMachine_CurrentAlwaysValid(t *testing.T) {
	m := NewMachine(&recordingFace{}, time.Second, false)
	emotions := []Emotion{EmotionUnknown, EmotionSad, EmotionHappy, 4, EmotionAngry, EmotionConfused, 99}
	for i := 0; i < 500; i++ {
		m.SetEmotion(emotions[i%len(emotions)])
		m.SetToggle(i % 3)
		m.Update(at(i * 300))
		if !m.Current().Valid() {
			t.Fatalf("step %d: invalid expression %d", i, m.Current())
		}
	}
}
