package cognitive

import (
	"context"

	"github.com/hupe1980/rare/core"
)

// learn counts the "{agent}:{action}" pattern, records the interaction in
// the context store and announces the new frequency.
func (l *Loop) learn(ctx context.Context, input core.Input, d core.Decision, u core.Understanding) core.Result[struct{}] {
	key := d.Agent + ":" + d.Action

	l.mu.Lock()
	l.patterns[key]++
	freq := l.patterns[key]
	l.mu.Unlock()

	emotion, intent := u.Emotion, u.Intent
	l.store.AddInteraction(core.Interaction{
		ID:        d.ID,
		Input:     input.Text,
		Emotion:   &emotion,
		Intent:    &intent,
		Agent:     d.Agent,
		Action:    d.Action,
		Timestamp: d.Timestamp,
	})

	l.emit(ctx, core.ChannelLearned, core.Learned{Pattern: key, Frequency: freq})
	return core.Ok(struct{}{})
}
