package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/rare/bus"
	"github.com/hupe1980/rare/core"
)

// Recorder captures events delivered to a subscription.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
	unsub  core.Unsubscribe
}

// NewRecorder subscribes to pattern on s and records every matching event.
func NewRecorder(s bus.Subscriber, pattern string) *Recorder {
	r := &Recorder{}
	r.unsub = s.On(pattern, func(_ context.Context, ev core.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
		return nil
	})
	return r
}

// Events returns the recorded events in delivery order.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the recorded event types in delivery order.
func (r *Recorder) Types() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []core.Event {
	var out []core.Event
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events of eventType were recorded.
func (r *Recorder) Count(eventType string) int { return len(r.OfType(eventType)) }

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Close removes the subscription.
func (r *Recorder) Close() { r.unsub() }
