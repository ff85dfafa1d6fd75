package cognitive

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/rare/core"
)

// execute reroutes decisions for unknown engines, updates the target's
// lifecycle flags and dispatches the command on its execute channel.
// Every failure is recorded but none stops the dispatch.
func (l *Loop) execute(ctx context.Context, d core.Decision, input core.Input, u core.Understanding) core.Result[core.Decision] {
	var (
		errs []error
		kind core.ErrorKind
	)
	fail := func(k core.ErrorKind, err error) {
		if len(errs) == 0 {
			kind = k
		}
		errs = append(errs, err)
	}

	if !l.kernel.HasEngine(d.Agent) {
		fail(core.KindEngineNotFound, fmt.Errorf("%s: %w", d.Agent, core.ErrEngineNotFound))
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("engine %s not registered, rerouted to %s:%s", d.Agent, core.DefaultAgent, core.DefaultAction))
		d.Agent, d.Action = core.DefaultAgent, core.DefaultAction
	}

	if err := l.manageLifecycle(ctx, d, input, u.Needs); err != nil {
		fail(core.KindLifecycleActionFailure, err)
	}

	if err := l.dispatch(ctx, d); err != nil {
		fail(core.KindEmissionFailure, err)
	}

	if len(errs) > 0 {
		return core.Fail(d, core.NewStageError(StageExecute, kind, errors.Join(errs...)))
	}
	return core.Ok(d)
}

// lifecycleFlags computes the desired control flags for the target engine.
type lifecycleFlags struct {
	start, pause, resume bool
	notify               bool
	notifyPriority       core.Priority
}

func desiredLifecycle(p core.Priority, needs core.Needs, app core.AppState, running bool) lifecycleFlags {
	if app == "" {
		app = core.AppForeground
	}
	f := lifecycleFlags{
		start:  p >= core.PriorityHigh && !running,
		pause:  running && ((p == core.PriorityLow && needs.HasAny(core.NeedQuietMode, core.NeedBatterySave)) || app == core.AppBackground),
		resume: app == core.AppForeground && !running && p != core.PriorityLow,
	}
	f.notify, f.notifyPriority = notificationFor(p, needs, app)
	return f
}

// notificationFor applies the notification rules in order: emergencies and
// critical work always notify, quiet mode or do-not-disturb suppress the
// rest, high priority notifies only when the app is not in front.
func notificationFor(p core.Priority, needs core.Needs, app core.AppState) (bool, core.Priority) {
	switch {
	case needs.HasAny(core.NeedSOS, core.NeedUrgentAttention):
		return true, core.PriorityCritical
	case p == core.PriorityCritical:
		return true, core.PriorityCritical
	case needs.HasAny(core.NeedQuietMode, core.NeedDoNotDisturb):
		return false, core.PriorityLow
	case p == core.PriorityHigh && app != core.AppForeground:
		return true, core.PriorityHigh
	default:
		return false, core.PriorityLow
	}
}

func (f lifecycleFlags) matches(lc core.AgentLifecycle) bool {
	return lc.ShouldStart == f.start && lc.ShouldPause == f.pause && lc.ShouldResume == f.resume &&
		!lc.ShouldStop && lc.NotificationPriority == f.notifyPriority
}

// pending reports whether the flags still ask for work the engine has not
// done: a notification, or a transition whose source state the engine is in.
func (f lifecycleFlags) pending(state core.EngineState) bool {
	return f.notify ||
		(f.start && state == core.EngineStopped) ||
		(f.pause && state == core.EngineRunning) ||
		(f.resume && state == core.EnginePaused)
}

func (l *Loop) manageLifecycle(ctx context.Context, d core.Decision, input core.Input, needs core.Needs) error {
	current, ok := l.kernel.Lifecycle(d.Agent)
	if !ok {
		return nil
	}

	state, _ := l.kernel.EngineState(d.Agent)
	f := desiredLifecycle(d.Priority, needs, input.AppState, state.IsRunning())
	if f.matches(current) && !f.pending(state) {
		return nil
	}

	reason := fmt.Sprintf("%s (%s priority)", d.Action, d.Priority)
	err := l.kernel.UpdateAgentLifecycle(ctx, d.Agent, core.LifecyclePatch{
		ShouldStart:          core.Bool(f.start),
		ShouldStop:           core.Bool(false),
		ShouldPause:          core.Bool(f.pause),
		ShouldResume:         core.Bool(f.resume),
		NeedsNotification:    core.Bool(f.notify),
		NotificationPriority: core.PriorityPtr(f.notifyPriority),
		Reason:               core.String(reason),
	})
	if err != nil {
		return fmt.Errorf("lifecycle %s: %w", d.Agent, err)
	}
	return nil
}

func (l *Loop) dispatch(ctx context.Context, d core.Decision) error {
	cmd := core.ExecuteCommand{
		DecisionID: d.ID,
		Action:     d.Action,
		Parameters: d.Parameters,
		Priority:   d.Priority,
		Timestamp:  d.Timestamp,
	}
	err := l.emit(ctx, core.ExecuteChannel(d.Agent), cmd)
	if err == nil {
		return nil
	}
	l.emit(ctx, core.ChannelExecutionError, core.ExecutionError{
		DecisionID: d.ID,
		Agent:      d.Agent,
		Action:     d.Action,
		Error:      err.Error(),
	})
	return fmt.Errorf("dispatch %s to %s: %w", d.Action, d.Agent, err)
}
