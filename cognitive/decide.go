package cognitive

import (
	"context"
	"fmt"
	"maps"

	"github.com/hupe1980/rare/core"
)

// escalatingEmotions raise the decision priority to at least high.
var escalatingEmotions = []core.EmotionType{core.EmotionConcerned, core.EmotionUrgent}

// decide routes the understanding through the registry and settles the
// priority: template base, then emotion escalation, then quiet mode, which
// lowers everything except critical work and emergencies.
func (l *Loop) decide(_ context.Context, id string, input core.Input, u core.Understanding, r core.Reasoning) core.Result[core.Decision] {
	t, known := l.decisions.Lookup(u.Intent.Type)
	if !known {
		t = l.decisions.Default()
	}

	reasoning := []string{
		fmt.Sprintf("intent %s (%.2f) routed to %s:%s", u.Intent.Type, u.Intent.Confidence, t.Agent, t.Action),
		fmt.Sprintf("emotion %s, urgency %s, complexity %s", u.Emotion.Type, r.Urgency, r.Complexity),
	}
	if !known {
		reasoning = append(reasoning, "no route for intent, using default")
	}

	priority := t.Priority
	for _, e := range escalatingEmotions {
		if u.Emotion.Type == e && priority < core.PriorityHigh {
			priority = core.MaxPriority(priority, core.PriorityHigh)
			reasoning = append(reasoning, fmt.Sprintf("priority raised to %s by %s emotion", priority, e))
		}
	}
	if u.Needs.Has(core.NeedQuietMode) && t.Priority != core.PriorityCritical &&
		!u.Needs.HasAny(core.NeedSOS, core.NeedUrgentAttention) && priority != core.PriorityLow {
		priority = core.PriorityLow
		reasoning = append(reasoning, "priority lowered by quiet mode")
	}

	params := maps.Clone(t.Parameters)
	if params == nil {
		params = make(map[string]any)
	}
	maps.Copy(params, u.Intent.Parameters)
	params["text"] = input.Text
	params["urgency"] = string(r.Urgency)
	params["complexity"] = string(r.Complexity)
	params["emotion"] = string(u.Emotion.Type)
	if len(u.Needs) > 0 {
		params["needs"] = u.Needs.Sorted()
	}

	return core.Ok(core.Decision{
		ID:         id,
		Action:     t.Action,
		Agent:      t.Agent,
		Parameters: params,
		Confidence: u.Intent.Confidence,
		Reasoning:  reasoning,
		Priority:   priority,
		Intent:     u.Intent,
		Emotion:    u.Emotion,
		Timestamp:  l.now().UTC(),
	})
}
