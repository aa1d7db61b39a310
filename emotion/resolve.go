package emotion

// Resolve selects the label with the highest score.
//
// Equal maxima are broken by the canonical order anger, disgust, fear,
// happiness, sadness, surprise, neutral: the earliest key wins. When the
// maximum is 0.0 (the no-face sentinel) the result is always Neutral.
//
// Resolve is total: keys missing from scores count as 0.0 and unknown keys are
// ignored.
func Resolve(scores Scores) Emotion {
	best := canonical[0]
	bestScore := scores[best]
	for _, k := range canonical[1:] {
		if v := scores[k]; v > bestScore {
			best, bestScore = k, v
		}
	}
	if bestScore == 0 {
		return Neutral
	}
	return best
}
