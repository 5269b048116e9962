// Package command receives motion commands and emotion labels from outside
// the control loop and hands them over to it. Commands go through a
// single-slot mailbox: a newer record replaces a pending one, and the loop
// takes the whole record in one swap so fields of two records never mix.
package command

import (
	"sync/atomic"

	"github.com/cjeanneret/v2mini/internal/logic/expression"
)

// Record is one motion command.
type Record struct {
	Face     int `json:"face"`      // non-zero cycles the expression
	Height   int `json:"height"`    // sign selects torso direction
	HeadTilt int `json:"head_tilt"` // absolute head-tilt target
	Pan      int `json:"pan"`       // absolute pan target
	Wrist    int `json:"wrist"`     // wrist target increment per tick
	Gripper  int `json:"gripper"`   // increment applied to both grippers
}

// Stats counts intake activity.
type Stats struct {
	Received    int64 `json:"received"`
	Overwritten int64 `json:"overwritten"` // records replaced before the loop took them
	Emotions    int64 `json:"emotions"`
}

// Intake is the mailbox between command producers and the control loop.
// It is safe for concurrent use.
type Intake struct {
	pending atomic.Pointer[Record]
	emotion atomic.Int64

	received    atomic.Int64
	overwritten atomic.Int64
	emotions    atomic.Int64
}

// NewIntake creates an empty intake with the emotion unknown.
func NewIntake() *Intake {
	return &Intake{}
}

// Submit stores r as the pending record, replacing any record the loop has
// not taken yet.
func (in *Intake) Submit(r Record) {
	in.received.Add(1)
	if prev := in.pending.Swap(&r); prev != nil {
		in.overwritten.Add(1)
	}
}

// Take removes and returns the pending record. ok is false when nothing
// arrived since the previous Take.
func (in *Intake) Take() (r Record, ok bool) {
	p := in.pending.Swap(nil)
	if p == nil {
		return Record{}, false
	}
	return *p, true
}

// SubmitEmotion decodes label and stores the result. Unrecognized labels
// store the unknown emotion.
func (in *Intake) SubmitEmotion(label string) expression.Emotion {
	e := expression.DecodeEmotion(label)
	in.SetEmotion(e)
	return e
}

// SetEmotion stores an already decoded emotion.
func (in *Intake) SetEmotion(e expression.Emotion) {
	in.emotions.Add(1)
	in.emotion.Store(int64(e))
}

// Emotion returns the latest emotion.
func (in *Intake) Emotion() expression.Emotion {
	return expression.Emotion(in.emotion.Load())
}

// Stats returns the intake counters.
func (in *Intake) Stats() Stats {
	return Stats{
		Received:    in.received.Load(),
		Overwritten: in.overwritten.Load(),
		Emotions:    in.emotions.Load(),
	}
}
