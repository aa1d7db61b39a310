package emotion

import "fmt"

// Glyphs maps a resolved label to the glyph shown for it.
type Glyphs map[Emotion]string

// DefaultGlyphs returns a fresh copy of the built-in emoji table.
func DefaultGlyphs() Glyphs {
	return Glyphs{
		Anger:     "😠",
		Disgust:   "🤢",
		Fear:      "😨",
		Happiness: "😄",
		Sadness:   "😢",
		Surprise:  "😲",
		Neutral:   "😐",
	}
}

// Lookup returns the glyph registered for e, or the raw label text when none is.
func (g Glyphs) Lookup(e Emotion) string {
	if glyph, ok := g[e]; ok && glyph != "" {
		return glyph
	}
	return string(e)
}

// WithOverrides returns a copy of g with the entries of overrides applied.
// Keys must name known emotions.
func (g Glyphs) WithOverrides(overrides map[string]string) (Glyphs, error) {
	out := make(Glyphs, len(g)+len(overrides))
	for k, v := range g {
		out[k] = v
	}
	for key, glyph := range overrides {
		e, err := Parse(key)
		if err != nil {
			return nil, fmt.Errorf("glyph override: %w", err)
		}
		out[e] = glyph
	}
	return out, nil
}
