package expression

import "fmt"

// Emotion is the human emotion reported by the perception side. A known
// emotion shares its value with the expression row that mirrors it.
type Emotion int

// Value 4 is reserved for surprise, which has no mirrored row and is
// decoded as EmotionUnknown.
const (
	EmotionUnknown  Emotion = 0
	EmotionSad      Emotion = 1
	EmotionHappy    Emotion = 2
	EmotionAngry    Emotion = 3
	EmotionConfused Emotion = 5
)

var labels = map[string]Emotion{
	"HAPPY":    EmotionHappy,
	"SAD":      EmotionSad,
	"CONFUSED": EmotionConfused,
	"ANGRY":    EmotionAngry,
}

// DecodeEmotion maps a label to an Emotion. Matching is exact; any other
// label, SURPRISED included, yields EmotionUnknown.
func DecodeEmotion(label string) Emotion {
	if e, ok := labels[label]; ok {
		return e
	}
	return EmotionUnknown
}

// Known reports whether e has a mirrored expression.
func (e Emotion) Known() bool {
	switch e {
	case EmotionSad, EmotionHappy, EmotionAngry, EmotionConfused:
		return true
	}
	return false
}

// Expression returns the row mirroring e, or Neutral for an unknown emotion.
func (e Emotion) Expression() Expression {
	if !e.Known() {
		return Neutral
	}
	return Expression(e)
}

func (e Emotion) String() string {
	switch e {
	case EmotionUnknown:
		return "UNKNOWN"
	case EmotionSad:
		return "SAD"
	case EmotionHappy:
		return "HAPPY"
	case EmotionAngry:
		return "ANGRY"
	case EmotionConfused:
		return "CONFUSED"
	default:
		return fmt.Sprintf("emotion(%d)", int(e))
	}
}
