package command

import (
	"sync"
	"testing"

	"github.com/cjeanneret/v2mini/internal/logic/expression"
)

func TestIntake_TakeEmpty(t *testing.T) {
	in := NewIntake()
	if _, ok := in.Take(); ok {
		t.Error("Take on empty intake returned a record")
	}
}

func TestIntake_LastWriteWins(t *testing.T) {
	in := NewIntake()
	in.Submit(Record{Wrist: 5, Pan: 600})
	in.Submit(Record{Wrist: -5, Gripper: 3})

	r, ok := in.Take()
	if !ok {
		t.Fatal("expected a pending record")
	}
	if want := (Record{Wrist: -5, Gripper: 3}); r != want {
		t.Errorf("Take() = %+v, want %+v", r, want)
	}
	if _, ok := in.Take(); ok {
		t.Error("record taken twice")
	}
	st := in.Stats()
	if st.Received != 2 || st.Overwritten != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestIntake_SubmitCopiesRecord(t *testing.T) {
	in := NewIntake()
	r := Record{Pan: 511}
	in.Submit(r)
	r.Pan = 9999
	got, _ := in.Take()
	if got.Pan != 511 {
		t.Errorf("pending record aliased the caller's value: Pan = %d", got.Pan)
	}
}

// Each producer writes records whose fields all carry the same value: a
// record mixing two submissions would show differing fields.
func TestIntake_NoTornRecords(t *testing.T) {
	in := NewIntake()
	var wg sync.WaitGroup
	for p := 1; p <= 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				v := p*10000 + i
				in.Submit(Record{Face: v, Height: v, HeadTilt: v, Pan: v, Wrist: v, Gripper: v})
			}
		}(p)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	check := func(r Record) {
		if r.Height != r.Face || r.HeadTilt != r.Face || r.Pan != r.Face || r.Wrist != r.Face || r.Gripper != r.Face {
			t.Fatalf("torn record %+v", r)
		}
	}
	for {
		select {
		case <-done:
			if r, ok := in.Take(); ok {
				check(r)
			}
			return
		default:
			if r, ok := in.Take(); ok {
				check(r)
			}
		}
	}
}

func TestIntake_Emotion(t *testing.T) {
	in := NewIntake()
	if in.Emotion() != expression.EmotionUnknown {
		t.Errorf("initial emotion = %v", in.Emotion())
	}
	if got := in.SubmitEmotion("ANGRY"); got != expression.EmotionAngry {
		t.Errorf("SubmitEmotion(ANGRY) = %v", got)
	}
	if in.Emotion() != expression.EmotionAngry {
		t.Errorf("Emotion() = %v, want ANGRY", in.Emotion())
	}
	in.SubmitEmotion("SURPRISED")
	if in.Emotion() != expression.EmotionUnknown {
		t.Errorf("Emotion() after SURPRISED = %v, want UNKNOWN", in.Emotion())
	}
	if in.Stats().Emotions != 2 {
		t.Errorf("Emotions = %d, want 2", in.Stats().Emotions)
	}
}
