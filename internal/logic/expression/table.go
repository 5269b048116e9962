// Package expression selects the facial expression shown by the robot:
// it mirrors a recognised human emotion, falls back to neutral after a
// quiet period and otherwise cycles through the table on a manual toggle.
package expression

import "fmt"

// Expression is a row of the expression table.
type Expression int

const (
	Neutral Expression = iota
	Sad
	Happy
	Angry
	Interested
	Uncertain
)

// Count is the number of table rows.
const Count = 6

// NumServos is the number of face servos driven per expression.
const NumServos = 5

// Pose is what one expression puts on the face: five servo angles in
// degrees and an eye palette index.
type Pose struct {
	Angles [NumServos]int
	Eye    int
}

var table = [Count]Pose{
	Neutral:    {Angles: [NumServos]int{100, 90, 80, 90, 80}, Eye: 4},
	Sad:        {Angles: [NumServos]int{150, 115, 90, 70, 30}, Eye: 2},
	Happy:      {Angles: [NumServos]int{20, 90, 80, 90, 160}, Eye: 4},
	Angry:      {Angles: [NumServos]int{80, 65, 80, 115, 100}, Eye: 0},
	Interested: {Angles: [NumServos]int{20, 85, 150, 95, 160}, Eye: 6},
	Uncertain:  {Angles: [NumServos]int{20, 105, 180, 75, 90}, Eye: 5},
}

var names = [Count]string{"neutral", "sad", "happy", "angry", "interested", "uncertain"}

func (e Expression) String() string {
	if !e.Valid() {
		return fmt.Sprintf("expression(%d)", int(e))
	}
	return names[e]
}

// Valid reports whether e is a table row.
func (e Expression) Valid() bool {
	return e >= 0 && e < Count
}

// Pose returns the table entry of e. Out-of-range values map to Neutral.
func (e Expression) Pose() Pose {
	if !e.Valid() {
		return table[Neutral]
	}
	return table[e]
}

// Next returns the following row, wrapping after the last one.
func (e Expression) Next() Expression {
	return (e + 1) % Count
}

// Color is an on/off RGB eye color.
type Color struct {
	R, G, B bool
}

// PaletteSize is the number of eye colors.
const PaletteSize = 8

// Palette holds the eye colors addressed by Pose.Eye.
var Palette = [PaletteSize]Color{
	{R: true},
	{G: true},
	{B: true},
	{R: true, G: true},
	{R: true, B: true},
	{G: true, B: true},
	{R: true, G: true, B: true},
	{},
}

// EyeColor returns the palette color of p. An index outside the palette
// turns the eye off.
func (p Pose) EyeColor() Color {
	if p.Eye < 0 || p.Eye >= PaletteSize {
		return Color{}
	}
	return Palette[p.Eye]
}

// ValidateTable checks every row for servo angles within [0, 180] and an
// eye index inside the palette.
func ValidateTable() error {
	for i, p := range table {
		for s, a := range p.Angles {
			if a < 0 || a > 180 {
				return fmt.Errorf("expression %s: servo %d angle %d outside [0, 180]", Expression(i), s, a)
			}
		}
		if p.Eye < 0 || p.Eye >= PaletteSize {
			return fmt.Errorf("expression %s: eye index %d outside palette", Expression(i), p.Eye)
		}
	}
	return nil
}
