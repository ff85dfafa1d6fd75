package cognitive

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rare/core"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"whitespace and case", "  Hello   WORLD ", "hello world"},
		{"arabic diacritics and hamza", "أَهْلاً", "اهلا"},
		{"tatweel", "مـــرحبا", "مرحبا"},
		{"alef maqsura", "على", "علي"},
		{"fullwidth", "ＡＰＰ", "app"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestKeywordEmotionDetector(t *testing.T) {
	d := NewKeywordEmotionDetector(nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input core.Input
		want  core.EmotionType
	}{
		{"english urgent", core.Input{Text: "This is URGENT, please hurry"}, core.EmotionUrgent},
		{"arabic thanks", core.Input{Text: "شكرا جزيلا"}, core.EmotionHappy},
		{"tired", core.Input{Text: "I'm so tired"}, core.EmotionTired},
		{"phrase", core.Input{Text: "I can't wait for the trip"}, core.EmotionExcited},
		{"loud fast audio", core.Input{Audio: &core.AudioFeatures{Energy: 0.9, Rate: 1.5}}, core.EmotionUrgent},
		{"quiet slow audio", core.Input{Audio: &core.AudioFeatures{Energy: 0.1, Rate: 0.6}}, core.EmotionTired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := d.Detect(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Type)
			assert.Greater(t, e.Intensity, 0.5)
			assert.LessOrEqual(t, e.Intensity, 1.0)
			assert.LessOrEqual(t, e.Confidence, 0.95)
		})
	}
}

func TestKeywordEmotionDetector_NoSignal(t *testing.T) {
	d := NewKeywordEmotionDetector(nil)

	_, err := d.Detect(context.Background(), core.Input{Text: "know the time"})
	assert.ErrorIs(t, err, ErrNoEmotionSignal)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, core.Input{Text: "urgent"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBestEmotion_TiesAreDeterministic(t *testing.T) {
	scores := map[core.EmotionType]int{"zen": 2, "bored": 2, "awe": 2, core.EmotionCalm: 1}
	for range 50 {
		best, hits := bestEmotion(scores)
		assert.Equal(t, core.EmotionType("awe"), best)
		assert.Equal(t, 2, hits)
	}

	scores[core.EmotionHappy] = 2
	best, _ := bestEmotion(scores)
	assert.Equal(t, core.EmotionHappy, best, "known emotions win ties over custom ones")
}

func TestKeywordEmotionDetector_MoreHitsRaiseIntensity(t *testing.T) {
	d := NewKeywordEmotionDetector(nil)
	ctx := context.Background()

	one, err := d.Detect(ctx, core.Input{Text: "urgent"})
	require.NoError(t, err)
	two, err := d.Detect(ctx, core.Input{Text: "urgent emergency"})
	require.NoError(t, err)
	assert.Greater(t, two.Intensity, one.Intensity)
	assert.Greater(t, two.Confidence, one.Confidence)
}

func TestPatternIntentClassifier(t *testing.T) {
	c := NewPatternIntentClassifier()
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"ابني تطبيق توصيل", core.IntentBuildApp},
		{"ابْنِي تطبيق", core.IntentBuildApp},
		{"Build me a delivery app", core.IntentBuildApp},
		{"افتح الخزنة", core.IntentVaultAccess},
		{"أريد كلمة السر", core.IntentVaultAccess},
		{"show my passwords", core.IntentVaultAccess},
		{"what's the weather today", core.IntentWeather},
		{"ترجم هذا النص", core.IntentTranslate},
		{"pay my invoice", core.IntentPayment},
		{"Navigate to the airport", core.IntentMaps},
		{"extract text from this photo", core.IntentOCR},
		{"move the files to a new folder", core.IntentFileOperation},
		{"listen to me", core.IntentVoiceCommand},
		{"hello there", core.IntentChat},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			intent, err := c.Classify(ctx, core.Input{Text: tt.text})
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.Type)
		})
	}
}

func TestPatternIntentClassifier_ChatFallback(t *testing.T) {
	c := NewPatternIntentClassifier()

	intent, err := c.Classify(context.Background(), core.Input{Text: "good morning"})
	require.NoError(t, err)
	assert.Equal(t, core.ChatIntent(), intent)
}

func TestPatternIntentClassifier_CacheReturnsCopies(t *testing.T) {
	c := NewPatternIntentClassifier()
	ctx := context.Background()

	first, err := c.Classify(ctx, core.Input{Text: "open my vault"})
	require.NoError(t, err)
	first.Parameters["matched"] = "tampered"

	second, err := c.Classify(ctx, core.Input{Text: "  OPEN my VAULT "})
	require.NoError(t, err)
	assert.Equal(t, core.IntentVaultAccess, second.Type)
	assert.Equal(t, "vault", second.Parameters["matched"])
	assert.Equal(t, 1, c.cache.Len())
}

func TestPatternIntentClassifier_CustomRules(t *testing.T) {
	c := NewPatternIntentClassifier(func(o *IntentOptions) {
		o.Rules = []IntentRule{{Intent: "greeting", Pattern: regexp.MustCompile(`^(hi|hello|مرحبا)\b`), Confidence: 0.7}}
		o.CacheSize = 0
	})

	intent, err := c.Classify(context.Background(), core.Input{Text: "Hello there"})
	require.NoError(t, err)
	assert.Equal(t, "greeting", intent.Type)
	assert.InDelta(t, 0.7, intent.Confidence, 1e-9)
	assert.Nil(t, c.cache)
}

func TestDecisionRegistry_DefaultTable(t *testing.T) {
	r := DefaultDecisionRegistry()

	tests := []struct {
		intent   string
		agent    string
		action   string
		priority core.Priority
	}{
		{core.IntentBuildApp, "builder", "build_app", core.PriorityHigh},
		{core.IntentVaultAccess, "vault", "vault_access", core.PriorityCritical},
		{core.IntentFileOperation, "filing", "file_operation", core.PriorityMedium},
		{core.IntentVoiceCommand, "voice", "voice_command", core.PriorityHigh},
		{core.IntentWeather, "weather", "get_weather", core.PriorityLow},
		{core.IntentMaps, "maps", "navigate", core.PriorityMedium},
		{core.IntentPayment, "payments", "process_payment", core.PriorityHigh},
		{core.IntentOCR, "ocr", "extract_text", core.PriorityMedium},
		{core.IntentTranslate, "translator", "translate", core.PriorityMedium},
		{core.IntentChat, core.DefaultAgent, core.DefaultAction, core.PriorityMedium},
		{"something_else", core.DefaultAgent, core.DefaultAction, core.PriorityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			got := r.Resolve(tt.intent)
			assert.Equal(t, tt.agent, got.Agent)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.priority, got.Priority)
		})
	}
	assert.Len(t, r.Intents(), 9)
}

func TestDecisionRegistry_RegisterAndDefault(t *testing.T) {
	r := NewDecisionRegistry()
	params := map[string]any{"units": "metric"}
	r.Register("forecast", DecisionTemplate{Agent: "weather", Action: "forecast", Priority: core.PriorityLow, Parameters: params})
	params["units"] = "imperial"

	got, ok := r.Lookup("forecast")
	require.True(t, ok)
	assert.Equal(t, "metric", got.Parameters["units"])

	r.Unregister("forecast")
	_, ok = r.Lookup("forecast")
	assert.False(t, ok)

	r.SetDefault(DecisionTemplate{Agent: "echo", Action: "echo", Priority: core.PriorityLow})
	assert.Equal(t, "echo", r.Resolve("forecast").Agent)
}
