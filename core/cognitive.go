package core

import (
	"sort"
	"time"
)

// EmotionType classifies the detected affective state of the user.
type EmotionType string

// Known emotion types. Detectors may emit others; the pipeline only reacts to
// the ones listed here.
const (
	EmotionNeutral   EmotionType = "neutral"
	EmotionHappy     EmotionType = "happy"
	EmotionSad       EmotionType = "sad"
	EmotionAngry     EmotionType = "angry"
	EmotionConcerned EmotionType = "concerned"
	EmotionUrgent    EmotionType = "urgent"
	EmotionFocused   EmotionType = "focused"
	EmotionExcited   EmotionType = "excited"
	EmotionTired     EmotionType = "tired"
	EmotionCalm      EmotionType = "calm"
)

// Emotion is a detected emotion with intensity and confidence in [0,1].
type Emotion struct {
	Type       EmotionType `json:"type"`
	Intensity  float64     `json:"intensity"`
	Confidence float64     `json:"confidence"`
}

// NeutralEmotion is the last-resort emotion used when detection and the
// rolling context average are both unavailable.
func NeutralEmotion() Emotion {
	return Emotion{Type: EmotionNeutral, Intensity: 0.5, Confidence: 0.5}
}

// Intent types recognised by the default classifier and decision table.
const (
	IntentChat          = "chat"
	IntentBuildApp      = "build_app"
	IntentVaultAccess   = "vault_access"
	IntentFileOperation = "file_operation"
	IntentVoiceCommand  = "voice_command"
	IntentWeather       = "weather"
	IntentMaps          = "maps"
	IntentPayment       = "payment"
	IntentTranslate     = "translate"
	IntentOCR           = "ocr"
)

// Intent is the classified purpose of an input.
type Intent struct {
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ChatIntent is the fallback intent used when classification fails.
func ChatIntent() Intent {
	return Intent{Type: IntentChat, Confidence: 0.5}
}

// Need names derived from ambient state, input signals and understanding.
const (
	NeedQuietMode            = "quiet_mode"
	NeedMinimizeInterruption = "minimize_interruption"
	NeedSecurityPriority     = "security_priority"
	NeedBatterySave          = "battery_save"
	NeedUrgentAttention      = "urgent_attention"
	NeedSOS                  = "sos"
	NeedDoNotDisturb         = "do_not_disturb"
	NeedMorningGreeting      = "morning_greeting"
	NeedDailySummary         = "daily_summary"
	NeedLunchReminder        = "lunch_reminder"
	NeedEveningSummary       = "evening_summary"
)

// Needs is a set of need names.
type Needs map[string]struct{}

// NewNeeds builds a set from the given names.
func NewNeeds(names ...string) Needs {
	n := make(Needs, len(names))
	for _, name := range names {
		n.Add(name)
	}
	return n
}

// Add inserts a need; empty names are ignored.
func (n Needs) Add(name string) {
	if name == "" {
		return
	}
	n[name] = struct{}{}
}

// Has reports whether the set contains name.
func (n Needs) Has(name string) bool {
	_, ok := n[name]
	return ok
}

// HasAny reports whether the set contains at least one of names.
func (n Needs) HasAny(names ...string) bool {
	for _, name := range names {
		if n.Has(name) {
			return true
		}
	}
	return false
}

// Sorted returns the needs in lexical order.
func (n Needs) Sorted() []string {
	out := make([]string, 0, len(n))
	for name := range n {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AppState reports whether the host application is visible to the user.
type AppState string

const (
	// AppForeground means the user is looking at the application.
	AppForeground AppState = "foreground"
	// AppBackground means the application is hidden or the screen is off.
	AppBackground AppState = "background"
)

// AudioFeatures carries prosody features extracted by a speech collaborator.
type AudioFeatures struct {
	Pitch  float64 `json:"pitch"`
	Energy float64 `json:"energy"`
	Rate   float64 `json:"rate"`
}

// Input is a raw external input handed to the cognitive loop.
type Input struct {
	Text     string            `json:"text"`
	Audio    *AudioFeatures    `json:"audio,omitempty"`
	AppState AppState          `json:"app_state,omitempty"`
	Signals  []string          `json:"signals,omitempty"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Situation is the ambient and conversational snapshot used to reason about an input.
type Situation struct {
	Hour               int           `json:"hour"`
	DayOfWeek          time.Weekday  `json:"day_of_week"`
	IsWeekend          bool          `json:"is_weekend"`
	Location           *Location     `json:"location,omitempty"`
	Activity           string        `json:"activity,omitempty"`
	RecentInteractions []Interaction `json:"recent_interactions,omitempty"`
}

// Understanding is the ephemeral result of the Understand stage.
type Understanding struct {
	Context   RAREContext `json:"-"`
	Emotion   Emotion     `json:"emotion"`
	Intent    Intent      `json:"intent"`
	Situation Situation   `json:"situation"`
	Needs     Needs       `json:"-"`
}

// Urgency is the coarse urgency estimate produced by the Reason stage.
type Urgency string

// Complexity is the coarse task complexity produced by the Reason stage.
type Complexity string

const (
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"

	ComplexityLow     Complexity = "low"
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Reasoning is the output of the Reason stage.
type Reasoning struct {
	Urgency    Urgency    `json:"urgency"`
	Complexity Complexity `json:"complexity"`
}

// DefaultReasoning is substituted when the Reason stage fails.
func DefaultReasoning() Reasoning {
	return Reasoning{Urgency: UrgencyMedium, Complexity: ComplexityLow}
}

// Decision is the routed, prioritized unit of work produced for one input.
type Decision struct {
	ID                 string         `json:"id"`
	Action             string         `json:"action"`
	Agent              string         `json:"agent"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	Confidence         float64        `json:"confidence"`
	Reasoning          []string       `json:"reasoning,omitempty"`
	Priority           Priority       `json:"priority"`
	Intent             Intent         `json:"intent"`
	Emotion            Emotion        `json:"emotion"`
	Timestamp          time.Time      `json:"timestamp"`
	Degraded           bool           `json:"degraded"`
	DegradationReasons []string       `json:"degradation_reasons,omitempty"`
}

// Default routing target used for unknown intents and unknown engines.
const (
	DefaultAgent  = "ai"
	DefaultAction = "ai_chat"
)

// FallbackMessage is the apologetic text surfaced to users when a decision
// had to fall back.
const FallbackMessage = "Sorry, something went wrong while handling your request. Please try again."

// FallbackDecision is returned when the pipeline cannot produce a regular decision.
func FallbackDecision(id string, cause string) Decision {
	return Decision{
		ID:                 id,
		Action:             DefaultAction,
		Agent:              DefaultAgent,
		Parameters:         map[string]any{"message": FallbackMessage},
		Confidence:         0.3,
		Reasoning:          []string{"fallback: " + cause},
		Priority:           PriorityLow,
		Intent:             ChatIntent(),
		Emotion:            NeutralEmotion(),
		Timestamp:          time.Now().UTC(),
		Degraded:           true,
		DegradationReasons: []string{cause},
	}
}

// Interaction is one input/output exchange recorded in the context store.
type Interaction struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	Output    string    `json:"output,omitempty"`
	Emotion   *Emotion  `json:"emotion,omitempty"`
	Intent    *Intent   `json:"intent,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Action    string    `json:"action,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
