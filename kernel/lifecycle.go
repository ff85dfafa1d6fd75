package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/rare/core"
)

// transition describes one engine lifecycle action.
type transition struct {
	from  []core.EngineState
	via   core.EngineState
	to    core.EngineState
	event string
}

var transitions = map[core.LifecycleAction]transition{
	core.ActionStart: {
		from:  []core.EngineState{core.EngineStopped},
		via:   core.EngineStarting,
		to:    core.EngineRunning,
		event: core.ChannelAgentStarted,
	},
	core.ActionStop: {
		from:  []core.EngineState{core.EngineRunning, core.EnginePaused},
		via:   core.EngineStopping,
		to:    core.EngineStopped,
		event: core.ChannelAgentStopped,
	},
	core.ActionPause: {
		from:  []core.EngineState{core.EngineRunning},
		via:   core.EnginePausing,
		to:    core.EnginePaused,
		event: core.ChannelAgentPaused,
	},
	core.ActionResume: {
		from:  []core.EngineState{core.EnginePaused},
		via:   core.EngineResuming,
		to:    core.EngineRunning,
		event: core.ChannelAgentResumed,
	},
}

// errNotSupported is returned when an optional capability is missing.
var errNotSupported = errors.New("not supported by engine")

// UpdateAgentLifecycle merges patch into the engine's lifecycle, stamps
// LastActivity and, while the kernel is running, executes at most one
// lifecycle action. A requested notification is emitted once per request,
// also while actions are deferred, and then cleared.
//
// Action failures are reported on agent:lifecycle_error and returned wrapped;
// the lifecycle record keeps the merged action flags either way.
func (k *Kernel) UpdateAgentLifecycle(ctx context.Context, engineID string, patch core.LifecyclePatch) error {
	k.mu.Lock()
	if k.state == core.KernelStopped {
		k.mu.Unlock()
		return core.ErrKernelStopped
	}
	en, ok := k.engines[engineID]
	if !ok {
		k.mu.Unlock()
		return fmt.Errorf("update lifecycle %s: %w", engineID, core.ErrEngineNotFound)
	}
	patch.Apply(&en.lifecycle)
	en.lifecycle.LastActivity = k.now()
	lc := en.lifecycle
	en.lifecycle.NeedsNotification = false
	state := en.state
	active := k.state == core.KernelRunning
	k.mu.Unlock()

	var err error
	if active {
		err = k.executeLifecycleActions(ctx, en, state, lc)
	} else {
		k.log.LogDebug("lifecycle actions deferred", "engine_id", engineID, "kernel_state", k.State())
	}
	if lc.NeedsNotification {
		k.notify(ctx, lc)
	}
	return err
}

func (k *Kernel) executeLifecycleActions(ctx context.Context, en *entry, state core.EngineState, lc core.AgentLifecycle) error {
	action, ok := selectAction(en.engine, state, lc)
	if !ok {
		return nil
	}
	return k.runAction(ctx, en, action, lc.Reason)
}

func (k *Kernel) notify(ctx context.Context, lc core.AgentLifecycle) {
	k.metrics.IncNotification(lc.NotificationPriority.String())
	k.emit(ctx, core.ChannelAgentNotification, core.Notification{
		EngineID: lc.EngineID,
		Priority: lc.NotificationPriority,
		Reason:   lc.Reason,
	})
}

// selectAction picks the single transition to execute for an update:
// stop > start > pause > resume, considering only flags whose precondition
// holds for the current state.
func selectAction(e core.Engine, state core.EngineState, lc core.AgentLifecycle) (core.LifecycleAction, bool) {
	_, canPause := e.(core.Pauser)
	_, canResume := e.(core.Resumer)
	switch {
	case lc.ShouldStop && state == core.EngineRunning:
		return core.ActionStop, true
	case lc.ShouldStart && state == core.EngineStopped:
		return core.ActionStart, true
	case lc.ShouldPause && state == core.EngineRunning && canPause:
		return core.ActionPause, true
	case lc.ShouldResume && state == core.EnginePaused && canResume:
		return core.ActionResume, true
	default:
		return "", false
	}
}

// runAction executes one transition and announces its outcome. Events are
// emitted after the engine's action lock is released so handlers may
// re-enter the kernel.
func (k *Kernel) runAction(ctx context.Context, en *entry, action core.LifecycleAction, reason string) error {
	id := en.engine.ID()
	ctx, span := k.tracer.Start(ctx, "kernel.lifecycle."+string(action), trace.WithAttributes(
		attribute.String("engine.id", id),
		attribute.String("lifecycle.action", string(action)),
	))
	defer span.End()

	start := time.Now()
	from, to, err := k.applyTransition(ctx, en, action)
	k.logLifecycleAction(id, action, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		k.metrics.IncLifecycleAction(id, string(action), "error")
		k.callbacks.execute(ctx, CallbackOnLifecycleError, &CallbackContext{EngineID: id, Action: action, From: from, Err: err})
		k.reportLifecycleError(ctx, id, string(action), err)
		return err
	}

	k.metrics.IncLifecycleAction(id, string(action), "ok")
	k.callbacks.execute(ctx, CallbackAfterLifecycleAction, &CallbackContext{EngineID: id, Action: action, From: from, To: to})
	k.emit(ctx, transitions[action].event, core.LifecycleChanged{EngineID: id, From: from, To: to, Reason: reason})
	return nil
}

func (k *Kernel) applyTransition(ctx context.Context, en *entry, action core.LifecycleAction) (core.EngineState, core.EngineState, error) {
	t, ok := transitions[action]
	if !ok {
		return "", "", fmt.Errorf("%s: unknown action: %w", action, core.ErrInvalidTransition)
	}

	en.actionMu.Lock()
	defer en.actionMu.Unlock()

	k.mu.Lock()
	from := en.state
	if !slices.Contains(t.from, from) || !from.CanTransition(t.via) {
		k.mu.Unlock()
		return from, from, fmt.Errorf("%s from %s: %w", action, from, core.ErrInvalidTransition)
	}
	k.mu.Unlock()

	id := en.engine.ID()
	if err := k.callbacks.execute(ctx, CallbackBeforeLifecycleAction, &CallbackContext{EngineID: id, Action: action, From: from, To: t.to}); err != nil {
		return from, from, fmt.Errorf("%s vetoed: %w", action, err)
	}

	k.mu.Lock()
	en.state = t.via
	k.mu.Unlock()

	err := invokeEngine(ctx, en.engine, action)

	k.mu.Lock()
	defer k.mu.Unlock()
	if err != nil {
		en.state = from
		return from, from, fmt.Errorf("%s engine %s: %w", action, id, err)
	}
	en.state = t.to
	return from, t.to, nil
}

func invokeEngine(ctx context.Context, e core.Engine, action core.LifecycleAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.PanicError(r)
		}
	}()
	switch action {
	case core.ActionStart:
		return e.Start(ctx)
	case core.ActionStop:
		return e.Stop(ctx)
	case core.ActionPause:
		p, ok := e.(core.Pauser)
		if !ok {
			return fmt.Errorf("pause: %w", errNotSupported)
		}
		return p.Pause(ctx)
	case core.ActionResume:
		r, ok := e.(core.Resumer)
		if !ok {
			return fmt.Errorf("resume: %w", errNotSupported)
		}
		return r.Resume(ctx)
	default:
		return fmt.Errorf("%s: %w", action, core.ErrInvalidTransition)
	}
}

func (k *Kernel) reportLifecycleError(ctx context.Context, engineID, action string, err error) {
	k.emit(ctx, core.ChannelAgentLifecycleError, core.LifecycleError{EngineID: engineID, Action: action, Error: err.Error()})
}

type lifecycleLogger interface {
	LogLifecycleAction(engineID, action string, dur time.Duration, err error)
}

func (k *Kernel) logLifecycleAction(engineID string, action core.LifecycleAction, dur time.Duration, err error) {
	if l, ok := k.log.Logger().(lifecycleLogger); ok {
		l.LogLifecycleAction(engineID, string(action), dur, err)
		return
	}
	if err != nil {
		k.log.LogError("lifecycle action failed", "engine_id", engineID, "action", action, "duration", dur, "error", err)
		return
	}
	k.log.LogInfo("lifecycle action completed", "engine_id", engineID, "action", action, "duration", dur)
}
