package core

import (
	"maps"
	"slices"
	"time"
)

// Bounds enforced by the context store.
const (
	MaxHistory        = 100
	MaxPatterns       = 20
	MaxRecentEmotions = 20
)

// Location is an optional coarse position reported by the host.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// SessionContext holds per-process conversational state. It is never persisted.
type SessionContext struct {
	ID             string        `json:"id"`
	StartTime      time.Time     `json:"start_time"`
	Interactions   []Interaction `json:"interactions"`
	CurrentEmotion *Emotion      `json:"current_emotion,omitempty"`
	CurrentIntent  *Intent       `json:"current_intent,omitempty"`
	Situation      *Situation    `json:"situation,omitempty"`
}

// Pattern counts how often an "{intentType}_{emotionType}" pair was seen.
type Pattern struct {
	Pattern   string    `json:"pattern"`
	Frequency int       `json:"frequency"`
	LastSeen  time.Time `json:"last_seen"`
}

// EmotionalState keeps the most recent emotions and their rolling average.
type EmotionalState struct {
	Recent  []Emotion `json:"recent"`
	Average *Emotion  `json:"average,omitempty"`
}

// MemoryContext is the long-lived part of the context and the only part persisted.
type MemoryContext struct {
	Preferences    map[string]any `json:"preferences"`
	Patterns       []Pattern      `json:"patterns"`
	History        []Interaction  `json:"history"`
	EmotionalState EmotionalState `json:"emotional_state"`
}

// AmbientContext is derived from wall-clock time and optional host signals.
type AmbientContext struct {
	Hour      int          `json:"hour"`
	DayOfWeek time.Weekday `json:"day_of_week"`
	IsWeekend bool         `json:"is_weekend"`
	Location  *Location    `json:"location,omitempty"`
	Activity  string       `json:"activity,omitempty"`
	Needs     []string     `json:"needs"`
}

// RAREContext is the payload of the context store.
type RAREContext struct {
	Session SessionContext `json:"session"`
	Memory  MemoryContext  `json:"memory"`
	Ambient AmbientContext `json:"ambient"`
}

// NewRAREContext returns an empty context with initialised collections.
func NewRAREContext(sessionID string, start time.Time) RAREContext {
	return RAREContext{
		Session: SessionContext{ID: sessionID, StartTime: start, Interactions: []Interaction{}},
		Memory: MemoryContext{
			Preferences:    map[string]any{},
			Patterns:       []Pattern{},
			History:        []Interaction{},
			EmotionalState: EmotionalState{Recent: []Emotion{}},
		},
		Ambient: AmbientContext{Needs: []string{}},
	}
}

// Clone returns a deep copy of the context. Preference values are copied one
// level deep; nested maps inside preferences are shared.
func (c RAREContext) Clone() RAREContext {
	out := c
	out.Session = c.Session.clone()
	out.Memory = c.Memory.Clone()
	out.Ambient = c.Ambient.clone()
	return out
}

func (s SessionContext) clone() SessionContext {
	out := s
	out.Interactions = cloneInteractions(s.Interactions)
	if s.CurrentEmotion != nil {
		e := *s.CurrentEmotion
		out.CurrentEmotion = &e
	}
	if s.CurrentIntent != nil {
		i := s.CurrentIntent.clone()
		out.CurrentIntent = &i
	}
	if s.Situation != nil {
		sit := *s.Situation
		sit.RecentInteractions = cloneInteractions(s.Situation.RecentInteractions)
		if s.Situation.Location != nil {
			loc := *s.Situation.Location
			sit.Location = &loc
		}
		out.Situation = &sit
	}
	return out
}

// Clone returns a deep copy of the memory sub-tree.
func (m MemoryContext) Clone() MemoryContext {
	out := m
	out.Preferences = maps.Clone(m.Preferences)
	if out.Preferences == nil {
		out.Preferences = map[string]any{}
	}
	out.Patterns = slices.Clone(m.Patterns)
	if out.Patterns == nil {
		out.Patterns = []Pattern{}
	}
	out.History = cloneInteractions(m.History)
	out.EmotionalState.Recent = slices.Clone(m.EmotionalState.Recent)
	if out.EmotionalState.Recent == nil {
		out.EmotionalState.Recent = []Emotion{}
	}
	if m.EmotionalState.Average != nil {
		avg := *m.EmotionalState.Average
		out.EmotionalState.Average = &avg
	}
	return out
}

func (a AmbientContext) clone() AmbientContext {
	out := a
	out.Needs = slices.Clone(a.Needs)
	if out.Needs == nil {
		out.Needs = []string{}
	}
	if a.Location != nil {
		loc := *a.Location
		out.Location = &loc
	}
	return out
}

func (i Intent) clone() Intent {
	out := i
	out.Parameters = maps.Clone(i.Parameters)
	return out
}

func (i Interaction) clone() Interaction {
	out := i
	if i.Emotion != nil {
		e := *i.Emotion
		out.Emotion = &e
	}
	if i.Intent != nil {
		in := i.Intent.clone()
		out.Intent = &in
	}
	return out
}

func cloneInteractions(in []Interaction) []Interaction {
	out := make([]Interaction, len(in))
	for idx, i := range in {
		out[idx] = i.clone()
	}
	return out
}

// SessionPatch lists session fields to overwrite; nil fields are left unchanged.
type SessionPatch struct {
	ID             *string
	StartTime      *time.Time
	Interactions   []Interaction
	CurrentEmotion *Emotion
	CurrentIntent  *Intent
	Situation      *Situation
}

// MemoryPatch lists memory fields to overwrite; nil fields are left unchanged.
type MemoryPatch struct {
	Preferences    map[string]any
	Patterns       []Pattern
	History        []Interaction
	EmotionalState *EmotionalState
}

// AmbientPatch lists ambient fields to overwrite; nil fields are left unchanged.
type AmbientPatch struct {
	Hour      *int
	DayOfWeek *time.Weekday
	IsWeekend *bool
	Location  *Location
	Activity  *string
	Needs     []string
}

// ContextPatch is a partial update. Each top-level key is shallow-merged
// independently of the others.
type ContextPatch struct {
	Session *SessionPatch
	Memory  *MemoryPatch
	Ambient *AmbientPatch
}

// Apply merges the patch into c in place. Values are copied so the caller may
// reuse the patch afterwards.
func (p ContextPatch) Apply(c *RAREContext) {
	if s := p.Session; s != nil {
		if s.ID != nil {
			c.Session.ID = *s.ID
		}
		if s.StartTime != nil {
			c.Session.StartTime = *s.StartTime
		}
		if s.Interactions != nil {
			c.Session.Interactions = cloneInteractions(s.Interactions)
		}
		if s.CurrentEmotion != nil {
			e := *s.CurrentEmotion
			c.Session.CurrentEmotion = &e
		}
		if s.CurrentIntent != nil {
			i := s.CurrentIntent.clone()
			c.Session.CurrentIntent = &i
		}
		if s.Situation != nil {
			tmp := SessionContext{Situation: s.Situation}.clone()
			c.Session.Situation = tmp.Situation
		}
	}
	if m := p.Memory; m != nil {
		if m.Preferences != nil {
			c.Memory.Preferences = maps.Clone(m.Preferences)
		}
		if m.Patterns != nil {
			c.Memory.Patterns = slices.Clone(m.Patterns)
		}
		if m.History != nil {
			c.Memory.History = cloneInteractions(m.History)
		}
		if m.EmotionalState != nil {
			c.Memory.EmotionalState = MemoryContext{EmotionalState: *m.EmotionalState}.Clone().EmotionalState
		}
	}
	if a := p.Ambient; a != nil {
		if a.Hour != nil {
			c.Ambient.Hour = *a.Hour
		}
		if a.DayOfWeek != nil {
			c.Ambient.DayOfWeek = *a.DayOfWeek
		}
		if a.IsWeekend != nil {
			c.Ambient.IsWeekend = *a.IsWeekend
		}
		if a.Location != nil {
			loc := *a.Location
			c.Ambient.Location = &loc
		}
		if a.Activity != nil {
			c.Ambient.Activity = *a.Activity
		}
		if a.Needs != nil {
			c.Ambient.Needs = slices.Clone(a.Needs)
		}
	}
}
