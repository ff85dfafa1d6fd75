package cognitive

import (
	"context"
	"errors"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/hupe1980/rare/core"
)

// ErrNoEmotionSignal is returned by detectors that found nothing to go on.
// The loop then falls back to the rolling average of recent emotions.
var ErrNoEmotionSignal = errors.New("no emotion signal")

// EmotionDetector derives an emotion from an input.
type EmotionDetector interface {
	Detect(ctx context.Context, input core.Input) (core.Emotion, error)
}

// EmotionDetectorFunc adapts a function to EmotionDetector.
type EmotionDetectorFunc func(ctx context.Context, input core.Input) (core.Emotion, error)

// Detect implements EmotionDetector.
func (f EmotionDetectorFunc) Detect(ctx context.Context, input core.Input) (core.Emotion, error) {
	return f(ctx, input)
}

// DefaultEmotionKeywords maps emotion types to English and Arabic cue words.
// Entries containing a space are matched as phrases, the rest as whole words.
func DefaultEmotionKeywords() map[core.EmotionType][]string {
	return map[core.EmotionType][]string{
		core.EmotionUrgent:    {"urgent", "asap", "emergency", "immediately", "hurry", "right now", "عاجل", "بسرعة", "طوارئ", "فورا", "ضروري"},
		core.EmotionConcerned: {"worried", "concerned", "afraid", "anxious", "scared", "problem", "قلق", "قلقان", "خايف", "مشكلة"},
		core.EmotionHappy:     {"happy", "great", "thanks", "thank you", "awesome", "love", "سعيد", "شكرا", "ممتاز", "رائع"},
		core.EmotionSad:       {"sad", "unhappy", "depressed", "lonely", "حزين", "زعلان"},
		core.EmotionAngry:     {"angry", "furious", "annoyed", "hate", "غاضب", "معصب"},
		core.EmotionFocused:   {"focus", "focused", "concentrate", "deadline", "تركيز", "مركز", "مشغول"},
		core.EmotionExcited:   {"excited", "can't wait", "wow", "متحمس"},
		core.EmotionTired:     {"tired", "exhausted", "sleepy", "تعبان", "نعسان"},
		core.EmotionCalm:      {"calm", "relaxed", "peaceful", "هادي", "مرتاح"},
	}
}

// emotionOrder breaks ties between equally scored emotions; earlier wins.
var emotionOrder = []core.EmotionType{
	core.EmotionUrgent, core.EmotionConcerned, core.EmotionAngry, core.EmotionSad,
	core.EmotionFocused, core.EmotionTired, core.EmotionExcited, core.EmotionHappy, core.EmotionCalm,
}

// KeywordEmotionDetector scores keyword hits in the text and, when present,
// prosody features. It is safe for concurrent use.
type KeywordEmotionDetector struct {
	keywords map[core.EmotionType][]string
}

// NewKeywordEmotionDetector returns a detector using keywords, or the
// defaults when keywords is nil.
func NewKeywordEmotionDetector(keywords map[core.EmotionType][]string) *KeywordEmotionDetector {
	if keywords == nil {
		keywords = DefaultEmotionKeywords()
	}
	normalized := make(map[core.EmotionType][]string, len(keywords))
	for t, words := range keywords {
		for _, w := range words {
			normalized[t] = append(normalized[t], Normalize(w))
		}
	}
	return &KeywordEmotionDetector{keywords: normalized}
}

// Detect implements EmotionDetector.
func (d *KeywordEmotionDetector) Detect(ctx context.Context, input core.Input) (core.Emotion, error) {
	if err := ctx.Err(); err != nil {
		return core.Emotion{}, err
	}

	text := Normalize(input.Text)
	words := tokens(text)
	scores := make(map[core.EmotionType]int)
	for t, cues := range d.keywords {
		for _, cue := range cues {
			if cue == "" {
				continue
			}
			if strings.Contains(cue, " ") {
				if strings.Contains(text, cue) {
					scores[t]++
				}
				continue
			}
			if _, ok := words[cue]; ok {
				scores[t]++
			}
		}
	}
	if t, ok := audioEmotion(input.Audio); ok {
		scores[t] += 2
	}

	best, hits := bestEmotion(scores)
	if hits == 0 {
		return core.Emotion{}, ErrNoEmotionSignal
	}
	return core.Emotion{
		Type:       best,
		Intensity:  math.Min(1, 0.5+0.15*float64(hits)),
		Confidence: math.Min(0.95, 0.6+0.1*float64(hits)),
	}, nil
}

// audioEmotion maps prosody to an emotion: loud and fast speech reads as
// urgent, quiet and slow speech as tired.
func audioEmotion(a *core.AudioFeatures) (core.EmotionType, bool) {
	if a == nil {
		return "", false
	}
	switch {
	case a.Energy >= 0.8 && a.Rate >= 1.3:
		return core.EmotionUrgent, true
	case a.Energy >= 0.8:
		return core.EmotionExcited, true
	case a.Energy <= 0.2 && a.Rate <= 0.8:
		return core.EmotionTired, true
	}
	return "", false
}

func bestEmotion(scores map[core.EmotionType]int) (core.EmotionType, int) {
	var (
		best core.EmotionType
		hits int
	)
	for _, t := range emotionOrder {
		if scores[t] > hits {
			best, hits = t, scores[t]
		}
	}
	// Custom emotion types rank after the known ones, in name order.
	for _, t := range slices.Sorted(maps.Keys(scores)) {
		if n := scores[t]; n > hits {
			best, hits = t, n
		}
	}
	return best, hits
}
