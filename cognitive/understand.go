package cognitive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/rare/core"
)

// isNight reports the quiet hours, [22,6).
func isNight(hour int) bool { return hour >= 22 || hour < 6 }

func (l *Loop) fallbackUnderstanding() core.Understanding {
	return core.Understanding{
		Emotion: core.NeutralEmotion(),
		Intent:  core.ChatIntent(),
		Needs:   core.NewNeeds(),
	}
}

// understand derives emotion, intent, situation and needs from the input and
// a context snapshot. Detector or classifier failures fall back to the
// rolling average emotion (then neutral) and to the chat intent.
func (l *Loop) understand(ctx context.Context, input core.Input) core.Result[core.Understanding] {
	snapshot := l.store.GetContext()
	u := core.Understanding{Context: snapshot}

	var errs []error
	kind := core.KindStageFailure
	if strings.TrimSpace(input.Text) == "" && input.Audio == nil {
		kind = core.KindInvalidInput
		errs = append(errs, fmt.Errorf("empty text and no audio: %w", core.ErrInvalidInput))
	}

	emotion, err := l.emotions.Detect(ctx, input)
	switch {
	case err == nil:
		u.Emotion = emotion
	case errors.Is(err, ErrNoEmotionSignal):
		u.Emotion = rollingEmotion(snapshot)
	default:
		errs = append(errs, fmt.Errorf("emotion detection: %w", err))
		u.Emotion = rollingEmotion(snapshot)
	}

	intent, err := l.intents.Classify(ctx, input)
	if err != nil {
		errs = append(errs, fmt.Errorf("intent classification: %w", err))
		intent = core.ChatIntent()
	}
	u.Intent = intent

	u.Situation = l.situation(snapshot)
	u.Needs = needsFor(snapshot.Ambient, input, u.Emotion, u.Intent)

	if len(errs) > 0 {
		return core.Fail(u, core.NewStageError(StageUnderstand, kind, errors.Join(errs...)))
	}
	return core.Ok(u)
}

func rollingEmotion(c core.RAREContext) core.Emotion {
	if avg := c.Memory.EmotionalState.Average; avg != nil {
		return *avg
	}
	return core.NeutralEmotion()
}

func (l *Loop) situation(c core.RAREContext) core.Situation {
	recent := c.Session.Interactions
	if len(recent) > l.recentLimit {
		recent = recent[len(recent)-l.recentLimit:]
	}
	return core.Situation{
		Hour:               c.Ambient.Hour,
		DayOfWeek:          c.Ambient.DayOfWeek,
		IsWeekend:          c.Ambient.IsWeekend,
		Location:           c.Ambient.Location,
		Activity:           c.Ambient.Activity,
		RecentInteractions: recent,
	}
}

func needsFor(a core.AmbientContext, input core.Input, emotion core.Emotion, intent core.Intent) core.Needs {
	needs := core.NewNeeds(a.Needs...)
	for _, s := range input.Signals {
		needs.Add(s)
	}
	if isNight(a.Hour) {
		needs.Add(core.NeedQuietMode)
	}
	if emotion.Type == core.EmotionFocused {
		needs.Add(core.NeedMinimizeInterruption)
	}
	if intent.Type == core.IntentVaultAccess {
		needs.Add(core.NeedSecurityPriority)
	}
	return needs
}
