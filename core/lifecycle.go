package core

import "time"

// EngineState is the position of an engine in its lifecycle state machine:
//
//	Stopped ⇄ Starting → Running ⇄ Pausing → Paused ⇄ Resuming → Running → Stopping → Stopped
type EngineState string

const (
	EngineStopped  EngineState = "stopped"
	EngineStarting EngineState = "starting"
	EngineRunning  EngineState = "running"
	EnginePausing  EngineState = "pausing"
	EnginePaused   EngineState = "paused"
	EngineResuming EngineState = "resuming"
	EngineStopping EngineState = "stopping"
)

// engineTransitions lists the legal edges. Failed intermediate states roll
// back to where they came from (Starting → Stopped, Pausing → Running,
// Resuming → Paused, Stopping → Running or Paused).
var engineTransitions = map[EngineState][]EngineState{
	EngineStopped:  {EngineStarting},
	EngineStarting: {EngineRunning, EngineStopped},
	EngineRunning:  {EnginePausing, EngineStopping},
	EnginePausing:  {EnginePaused, EngineRunning},
	EnginePaused:   {EngineResuming, EngineStopping},
	EngineResuming: {EngineRunning, EnginePaused},
	EngineStopping: {EngineStopped, EngineRunning, EnginePaused},
}

// CanTransition reports whether the state machine allows from → to.
func (s EngineState) CanTransition(to EngineState) bool {
	for _, next := range engineTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsRunning reports whether the engine is accepting work.
func (s EngineState) IsRunning() bool { return s == EngineRunning }

// KernelState is the kernel-wide state:
//
//	Uninitialized → Initialized → Running ⇄ Paused → Stopped
type KernelState string

const (
	KernelUninitialized KernelState = "uninitialized"
	KernelInitialized   KernelState = "initialized"
	KernelRunning       KernelState = "running"
	KernelPaused        KernelState = "paused"
	KernelStopped       KernelState = "stopped"
)

// LifecycleAction names an engine transition requested through lifecycle flags.
type LifecycleAction string

const (
	ActionStart  LifecycleAction = "start"
	ActionStop   LifecycleAction = "stop"
	ActionPause  LifecycleAction = "pause"
	ActionResume LifecycleAction = "resume"
	ActionNotify LifecycleAction = "notify"
)

// AgentLifecycle holds the control flags for one registered engine. It is
// mutated only through Kernel.UpdateAgentLifecycle.
type AgentLifecycle struct {
	EngineID             string    `json:"engine_id"`
	ShouldStart          bool      `json:"should_start"`
	ShouldStop           bool      `json:"should_stop"`
	ShouldPause          bool      `json:"should_pause"`
	ShouldResume         bool      `json:"should_resume"`
	NeedsNotification    bool      `json:"needs_notification"`
	NotificationPriority Priority  `json:"notification_priority"`
	LastActivity         time.Time `json:"last_activity"`
	Reason               string    `json:"reason,omitempty"`
}

// NewAgentLifecycle returns the default lifecycle: every flag false, low
// notification priority.
func NewAgentLifecycle(engineID string, now time.Time) AgentLifecycle {
	return AgentLifecycle{EngineID: engineID, NotificationPriority: PriorityLow, LastActivity: now}
}

// LifecyclePatch is a partial lifecycle update; nil fields are left unchanged.
type LifecyclePatch struct {
	ShouldStart          *bool
	ShouldStop           *bool
	ShouldPause          *bool
	ShouldResume         *bool
	NeedsNotification    *bool
	NotificationPriority *Priority
	Reason               *string
}

// Apply merges the patch into l.
func (p LifecyclePatch) Apply(l *AgentLifecycle) {
	if p.ShouldStart != nil {
		l.ShouldStart = *p.ShouldStart
	}
	if p.ShouldStop != nil {
		l.ShouldStop = *p.ShouldStop
	}
	if p.ShouldPause != nil {
		l.ShouldPause = *p.ShouldPause
	}
	if p.ShouldResume != nil {
		l.ShouldResume = *p.ShouldResume
	}
	if p.NeedsNotification != nil {
		l.NeedsNotification = *p.NeedsNotification
	}
	if p.NotificationPriority != nil {
		l.NotificationPriority = *p.NotificationPriority
	}
	if p.Reason != nil {
		l.Reason = *p.Reason
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p LifecyclePatch) IsEmpty() bool {
	return p.ShouldStart == nil && p.ShouldStop == nil && p.ShouldPause == nil &&
		p.ShouldResume == nil && p.NeedsNotification == nil &&
		p.NotificationPriority == nil && p.Reason == nil
}

// Bool returns a pointer to b; handy for building patches.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s; handy for building patches.
func String(s string) *string { return &s }

// PriorityPtr returns a pointer to p; handy for building patches.
func PriorityPtr(p Priority) *Priority { return &p }
