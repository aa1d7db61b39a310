package emotion

import (
	"fmt"
	"math"
)

// Scores maps each emotion key to a confidence in [0, 1] for a single frame.
//
// Either at least one entry is non-zero (a face was detected) or every entry is
// exactly 0.0, which is the sentinel for "no face detected".
type Scores map[Emotion]float64

// NoFace returns the all-zero sentinel score map.
func NoFace() Scores {
	s := make(Scores, len(canonical))
	for _, k := range canonical {
		s[k] = 0
	}
	return s
}

// IsNoFace reports whether every known entry of s is exactly zero.
func (s Scores) IsNoFace() bool {
	for _, k := range canonical {
		if s[k] != 0 {
			return false
		}
	}
	return true
}

// Validate checks that s carries every key of the fixed set with a value in [0, 1].
func (s Scores) Validate() error {
	for _, k := range canonical {
		v, ok := s[k]
		if !ok {
			return fmt.Errorf("missing score for %s", k)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("score for %s out of range: %v", k, v)
		}
	}
	for k := range s {
		if !k.Valid() {
			return fmt.Errorf("unexpected emotion key %q", k)
		}
	}
	return nil
}
