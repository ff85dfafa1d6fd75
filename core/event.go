package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known event channels.
const (
	ChannelUserInput = "user:input"

	ChannelAgentStarted        = "agent:started"
	ChannelAgentStopped        = "agent:stopped"
	ChannelAgentPaused         = "agent:paused"
	ChannelAgentResumed        = "agent:resumed"
	ChannelAgentNotification   = "agent:notification"
	ChannelAgentLifecycleError = "agent:lifecycle_error"

	ChannelDecisionMade    = "cognitive:decision_made"
	ChannelExecutionError  = "cognitive:execution_error"
	ChannelLearned         = "cognitive:learned"
	ChannelPatternAnalysis = "cognitive:pattern_analysis"

	ChannelKernelStateChanged = "kernel:state_changed"
)

// Engine result outcomes used with ResultChannel.
const (
	OutcomeResponse = "response"
	OutcomeError    = "error"
)

// ExecuteChannel is the inbound channel of an engine: agent:{id}:execute.
func ExecuteChannel(engineID string) string {
	return "agent:" + engineID + ":execute"
}

// ResultChannel is an outbound channel of an engine: agent:{id}:{outcome}.
func ResultChannel(engineID, outcome string) string {
	return "agent:" + engineID + ":" + outcome
}

// Payload is the closed set of event bodies. Every variant lives in this
// package; the unexported marker keeps other packages from adding variants,
// so emitters and subscribers agree on payload shapes at compile time.
type Payload interface {
	payload()
}

// UserInput carries a raw external input (user:input).
type UserInput struct {
	Input Input `json:"input"`
}

// ExecuteCommand instructs an engine to perform an action (agent:{id}:execute).
type ExecuteCommand struct {
	DecisionID string         `json:"decision_id,omitempty"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   Priority       `json:"priority"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AgentResult is published by an engine after completing an action (agent:{id}:response).
type AgentResult struct {
	EngineID   string         `json:"engine_id"`
	DecisionID string         `json:"decision_id,omitempty"`
	Action     string         `json:"action"`
	Output     string         `json:"output,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// AgentFailure is published by an engine when an action fails (agent:{id}:error).
type AgentFailure struct {
	EngineID   string `json:"engine_id"`
	DecisionID string `json:"decision_id,omitempty"`
	Action     string `json:"action"`
	Error      string `json:"error"`
}

// LifecycleChanged reports a completed engine transition (agent:started|stopped|paused|resumed).
type LifecycleChanged struct {
	EngineID string      `json:"engine_id"`
	From     EngineState `json:"from"`
	To       EngineState `json:"to"`
	Reason   string      `json:"reason,omitempty"`
}

// Notification asks the host to surface something to the user (agent:notification).
type Notification struct {
	EngineID string   `json:"engine_id"`
	Priority Priority `json:"priority"`
	Reason   string   `json:"reason,omitempty"`
}

// LifecycleError reports a failed lifecycle action (agent:lifecycle_error).
type LifecycleError struct {
	EngineID string `json:"engine_id"`
	Action   string `json:"action"`
	Error    string `json:"error"`
}

// DecisionMade announces a decision produced by the cognitive loop.
type DecisionMade struct {
	Decision Decision `json:"decision"`
}

// ExecutionError reports a failed dispatch of a decision.
type ExecutionError struct {
	DecisionID string `json:"decision_id"`
	Agent      string `json:"agent"`
	Action     string `json:"action"`
	Error      string `json:"error"`
}

// Learned reports the updated frequency of an "{agent}:{action}" pattern.
type Learned struct {
	Pattern   string `json:"pattern"`
	Frequency int    `json:"frequency"`
}

// PatternAnalysis is the periodic summary of the most frequent patterns.
type PatternAnalysis struct {
	TopPatterns    []Pattern      `json:"top_patterns"`
	DecisionCounts map[string]int `json:"decision_counts"`
	DecisionsSeen  int            `json:"decisions_seen"`
}

// KernelStateChanged reports a kernel-wide transition.
type KernelStateChanged struct {
	From KernelState `json:"from"`
	To   KernelState `json:"to"`
}

// DomainEvent is an engine specific notification such as builder:app_built.
type DomainEvent struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

func (UserInput) payload()          {}
func (ExecuteCommand) payload()     {}
func (AgentResult) payload()        {}
func (AgentFailure) payload()       {}
func (LifecycleChanged) payload()   {}
func (Notification) payload()       {}
func (LifecycleError) payload()     {}
func (DecisionMade) payload()       {}
func (ExecutionError) payload()     {}
func (Learned) payload()            {}
func (PatternAnalysis) payload()    {}
func (KernelStateChanged) payload() {}
func (DomainEvent) payload()        {}

// Event is the unit of communication on the bus. After emission it should be
// treated as immutable.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      Payload   `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// NewEvent creates an event of the given type stamped with the current time.
func NewEvent(eventType string, data Payload) Event {
	return Event{
		ID:        NewID(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// WithSource returns a copy of the event attributed to source.
func (e Event) WithSource(source string) Event {
	e.Source = source
	return e
}

// UnixMilli returns the timestamp as milliseconds since the Unix epoch.
func (e Event) UnixMilli() int64 { return e.Timestamp.UnixMilli() }

// NewID generates a new unique identifier for events, decisions and sessions.
func NewID() string { return uuid.NewString() }

// Handler consumes an event. Returned errors are logged by the bus and never
// reach the emitter.
type Handler func(ctx context.Context, ev Event) error

// Unsubscribe removes a subscription. It is safe to call more than once.
type Unsubscribe func()

// MatchPattern reports whether eventType matches a subscription pattern.
// Patterns are an exact type, "*" for everything, or a prefix ending in "*"
// such as "agent:*".
func MatchPattern(pattern, eventType string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == eventType
	}
}
