// Package cognitive implements the five-stage cognitive loop: Understand,
// Reason, Decide, Execute and Learn.
//
// A Loop turns a raw core.Input into a core.Decision. Every stage returns a
// usable value even when it fails, so ProcessInput never returns an error: a
// degraded decision carries the reasons in Decision.DegradationReasons and, in
// the worst case, is the apologetic fallback routed to the default "ai"
// engine.
//
// Emotion detection and intent classification are pluggable through the
// EmotionDetector and IntentClassifier interfaces. The defaults are keyword
// and pattern based and understand English and Arabic input.
//
// Example:
//
//	k := kernel.New()
//	store := contextstore.New(memory.NewInMemoryStore())
//	loop := cognitive.New(k, store)
//	_ = loop.Attach() // react to user:input events
//
//	d := loop.ProcessInput(ctx, core.Input{Text: "build me a delivery app"})
//	fmt.Println(d.Agent, d.Action, d.Priority) // builder build_app high
package cognitive
