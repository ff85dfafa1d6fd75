package contextstore

import (
	"slices"
	"time"

	"github.com/hupe1980/rare/core"
)

// PatternKey builds the "{intentType}_{emotionType}" pattern identifier.
func PatternKey(intentType string, emotionType core.EmotionType) string {
	return intentType + "_" + string(emotionType)
}

// trackPattern increments (or inserts) key and keeps the top MaxPatterns by
// frequency. The touched entry moves to the front before the stable sort, so
// among equal frequencies the most recently seen pattern wins.
func trackPattern(patterns []core.Pattern, key string, now time.Time) []core.Pattern {
	touched := core.Pattern{Pattern: key, Frequency: 1, LastSeen: now}
	rest := make([]core.Pattern, 0, len(patterns)+1)
	for _, p := range patterns {
		if p.Pattern == key {
			touched.Frequency = p.Frequency + 1
			continue
		}
		rest = append(rest, p)
	}
	return rankPatterns(append([]core.Pattern{touched}, rest...))
}

// rankPatterns stable-sorts by frequency descending and truncates to MaxPatterns.
func rankPatterns(patterns []core.Pattern) []core.Pattern {
	out := slices.Clone(patterns)
	slices.SortStableFunc(out, func(a, b core.Pattern) int {
		return b.Frequency - a.Frequency
	})
	if len(out) > core.MaxPatterns {
		out = out[:core.MaxPatterns]
	}
	if out == nil {
		out = []core.Pattern{}
	}
	return out
}

// averageEmotion returns the most frequent type among recent (ties go to the
// type seen most recently) with the mean intensity and confidence.
func averageEmotion(recent []core.Emotion) core.Emotion {
	if len(recent) == 0 {
		return core.NeutralEmotion()
	}
	counts := make(map[core.EmotionType]int, len(recent))
	var intensity, confidence float64
	for _, e := range recent {
		counts[e.Type]++
		intensity += e.Intensity
		confidence += e.Confidence
	}

	var best core.EmotionType
	bestCount := 0
	for i := len(recent) - 1; i >= 0; i-- {
		t := recent[i].Type
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	n := float64(len(recent))
	return core.Emotion{Type: best, Intensity: intensity / n, Confidence: confidence / n}
}
