// Package bus implements the process-wide publish/subscribe primitive used by
// the kernel, the cognitive loop and engines.
//
// Emit dispatches synchronously, in subscription order, to every handler
// whose pattern matches the event type. Patterns are an exact type
// ("user:input"), a prefix ending in "*" ("agent:*"), or "*" for everything.
// Exact and wildcard subscriptions share one ordered list, so a wildcard
// handler registered before an exact handler also runs before it.
//
// A failing handler never affects the emitter or the remaining handlers:
// returned errors and panics are recovered, logged, counted and passed to the
// optional OnHandlerError hook.
//
//	b := bus.New()
//	unsub := b.On("agent:*", func(ctx context.Context, ev core.Event) error {
//	    log.Println(ev.Type)
//	    return nil
//	})
//	defer unsub()
//	_ = b.Emit(ctx, core.NewEvent(core.ChannelAgentStarted, core.LifecycleChanged{EngineID: "ai"}))
package bus
