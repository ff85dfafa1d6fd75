package cognitive

import (
	"context"

	"github.com/hupe1980/rare/core"
)

func (l *Loop) reason(_ context.Context, u core.Understanding) core.Result[core.Reasoning] {
	r := core.Reasoning{Urgency: core.UrgencyMedium, Complexity: core.ComplexitySimple}
	switch {
	case u.Emotion.Type == core.EmotionUrgent, u.Emotion.Type == core.EmotionConcerned:
		r.Urgency = core.UrgencyHigh
	case u.Intent.Type == core.IntentVaultAccess, u.Intent.Type == core.IntentVoiceCommand:
		r.Urgency = core.UrgencyHigh
	}
	switch u.Intent.Type {
	case core.IntentBuildApp:
		r.Complexity = core.ComplexityComplex
	case core.IntentFileOperation:
		r.Complexity = core.ComplexityMedium
	}
	return core.Ok(r)
}
