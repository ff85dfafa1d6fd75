// Package kernel implements the engine registry and the lifecycle state
// machines that sit between the cognitive loop and the engines it drives.
//
// # Responsibilities
//
// Engine Registry:
//   - Registration keyed by engine id, duplicate ids rejected
//   - One AgentLifecycle record per registered engine
//   - Engines registered after Init are initialized immediately
//
// Kernel State Machine:
//
//	Uninitialized → Initialized → Running ⇄ Paused → Stopped
//
// Init is idempotent. Start starts every registered engine concurrently and
// isolates individual failures. Pause and Resume forward to engines that
// implement core.Pauser or core.Resumer. Stop stops every running or paused
// engine and is idempotent. Every kernel-wide transition is announced on
// kernel:state_changed.
//
// Engine State Machine:
//
//	Stopped ⇄ Starting → Running ⇄ Pausing → Paused ⇄ Resuming → Running → Stopping → Stopped
//
// Engine transitions are only initiated through UpdateAgentLifecycle (and the
// kernel-wide operations above). An update executes at most one transition,
// chosen by precedence stop > start > pause > resume among the flags whose
// precondition holds:
//
//   - stop: ShouldStop and the engine is Running
//   - start: ShouldStart and the engine is Stopped
//   - pause: ShouldPause, the engine is Running and implements core.Pauser
//   - resume: ShouldResume, the engine is Paused and implements core.Resumer
//
// A failed action rolls the engine back to its previous state and is reported
// on agent:lifecycle_error; it is never fatal to the kernel. Successful
// actions are announced on agent:started, agent:stopped, agent:paused and
// agent:resumed. NeedsNotification additionally emits agent:notification.
//
// # Scheduled Tasks
//
// Schedule registers a periodic task owned by the kernel. Tasks run only
// while the kernel is Running, are suspended by Pause, re-armed by Resume and
// cancelled for good by Stop, so no timer outlives the kernel.
//
// # Usage
//
//	k := kernel.New(func(o *kernel.Options) { o.Logger = logger })
//	_ = k.RegisterEngine(ctx, myEngine)
//	if err := k.Start(ctx); err != nil {
//	    return err
//	}
//	defer k.Stop(context.Background())
//
//	_ = k.UpdateAgentLifecycle(ctx, "builder", core.LifecyclePatch{ShouldStart: core.Bool(true)})
package kernel
