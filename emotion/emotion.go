// Package emotion defines the fixed set of facial emotion labels, the per-frame
// score map produced by a classifier, and the policy that resolves a score map
// into the single label shown on the display.
package emotion

import (
	"errors"
	"fmt"
	"strings"
)

// Emotion is a resolved display label.
type Emotion string

// The fixed emotion key set. The declaration order below is the canonical order
// used to break ties between equal scores.
const (
	Anger     Emotion = "anger"
	Disgust   Emotion = "disgust"
	Fear      Emotion = "fear"
	Happiness Emotion = "happiness"
	Sadness   Emotion = "sadness"
	Surprise  Emotion = "surprise"
	Neutral   Emotion = "neutral"
)

// canonical is the tie-break order. It must not be reordered.
var canonical = [...]Emotion{Anger, Disgust, Fear, Happiness, Sadness, Surprise, Neutral}

// ErrNoFace is reported by classifiers when a frame contains no face. It is a
// recoverable condition that resolves to the all-zero score map.
var ErrNoFace = errors.New("no face detected")

// All returns the emotion keys in canonical order.
func All() []Emotion {
	out := make([]Emotion, len(canonical))
	copy(out, canonical[:])
	return out
}

// Parse converts s into a known Emotion. Matching ignores case and surrounding space.
func Parse(s string) (Emotion, error) {
	key := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if key.Valid() {
		return key, nil
	}
	return "", fmt.Errorf("unknown emotion %q", s)
}

// Valid reports whether e is one of the fixed emotion keys.
func (e Emotion) Valid() bool {
	for _, k := range canonical {
		if k == e {
			return true
		}
	}
	return false
}

func (e Emotion) String() string {
	return string(e)
}
