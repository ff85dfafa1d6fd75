package cognitive

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/rare/bus"
	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/kernel"
	"github.com/hupe1980/rare/logging"
	"github.com/hupe1980/rare/metrics"
)

const tracerName = "github.com/hupe1980/rare/cognitive"

// Source is the event source used for events emitted by the loop.
const Source = "cognitive"

// Pipeline stage names.
const (
	StageUnderstand = "understand"
	StageReason     = "reason"
	StageDecide     = "decide"
	StageExecute    = "execute"
	StageLearn      = "learn"
)

// Defaults.
const (
	DefaultHistoryLimit       = 1000
	DefaultRecentInteractions = 5
	DefaultTopPatterns        = 5

	// PatternAnalysisTask is the name of the scheduled analysis task.
	PatternAnalysisTask = "cognitive.pattern_analysis"
)

// Kernel is the part of the kernel the loop drives.
type Kernel interface {
	bus.Subscriber
	Emit(ctx context.Context, ev core.Event) error
	Bus() *bus.Bus
	HasEngine(id string) bool
	EngineState(id string) (core.EngineState, bool)
	Lifecycle(id string) (core.AgentLifecycle, bool)
	UpdateAgentLifecycle(ctx context.Context, engineID string, patch core.LifecyclePatch) error
	Schedule(name string, interval time.Duration, fn kernel.TaskFunc) (*kernel.Task, error)
}

// ContextStore is the part of the context store the loop reads and writes.
type ContextStore interface {
	GetContext() core.RAREContext
	AddInteraction(i core.Interaction)
	Patterns() []core.Pattern
}

// Options configures a Loop.
type Options struct {
	// EmotionDetector derives emotions. Defaults to a KeywordEmotionDetector.
	EmotionDetector EmotionDetector

	// IntentClassifier derives intents. Defaults to a PatternIntentClassifier.
	IntentClassifier IntentClassifier

	// Decisions routes intents to engines. Defaults to DefaultDecisionRegistry.
	Decisions *DecisionRegistry

	// HistoryLimit caps the in-memory decision history (FIFO).
	HistoryLimit int

	// RecentInteractions is how many session interactions feed the situation.
	RecentInteractions int

	// Clock stamps decisions. Defaults to time.Now.
	Clock func() time.Time

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Metrics records stage timings and decisions. Optional.
	Metrics *metrics.Metrics

	// TracerProvider creates one span per input and per stage. Defaults to
	// the global provider.
	TracerProvider trace.TracerProvider

	// AnalysisInterval schedules AnalyzePatterns on Attach. Zero disables it.
	AnalysisInterval time.Duration
}

// Loop is the cognitive loop. It is safe for concurrent use; concurrent
// inputs are processed independently and share only the context store, the
// decision history and the pattern counts.
type Loop struct {
	kernel    Kernel
	store     ContextStore
	emotions  EmotionDetector
	intents   IntentClassifier
	decisions *DecisionRegistry
	log       core.LoggerAdapter
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time

	historyLimit     int
	recentLimit      int
	analysisInterval time.Duration

	mu       sync.Mutex
	history  []core.Decision
	patterns map[string]int
	seen     int

	attachMu sync.Mutex
	unsub    core.Unsubscribe
	task     *kernel.Task
}

// New creates a Loop that dispatches through k and remembers through store.
func New(k Kernel, store ContextStore, optFns ...func(o *Options)) *Loop {
	opts := Options{
		HistoryLimit:       DefaultHistoryLimit,
		RecentInteractions: DefaultRecentInteractions,
		Clock:              time.Now,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.EmotionDetector == nil {
		opts.EmotionDetector = NewKeywordEmotionDetector(nil)
	}
	if opts.IntentClassifier == nil {
		opts.IntentClassifier = NewPatternIntentClassifier()
	}
	if opts.Decisions == nil {
		opts.Decisions = DefaultDecisionRegistry()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.RecentInteractions <= 0 {
		opts.RecentInteractions = DefaultRecentInteractions
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Loop{
		kernel:           k,
		store:            store,
		emotions:         opts.EmotionDetector,
		intents:          opts.IntentClassifier,
		decisions:        opts.Decisions,
		log:              core.NewLoggerAdapter(opts.Logger),
		metrics:          opts.Metrics,
		tracer:           opts.TracerProvider.Tracer(tracerName),
		now:              opts.Clock,
		historyLimit:     opts.HistoryLimit,
		recentLimit:      opts.RecentInteractions,
		analysisInterval: opts.AnalysisInterval,
		patterns:         make(map[string]int),
	}
}

// Decisions returns the routing registry.
func (l *Loop) Decisions() *DecisionRegistry { return l.decisions }

// ProcessInput runs the five stages for input and returns the decision. It
// never fails: stage failures degrade to documented fallbacks and a panic
// anywhere in the pipeline yields core.FallbackDecision.
func (l *Loop) ProcessInput(ctx context.Context, input core.Input) (decision core.Decision) {
	id := core.NewID()
	ctx, span := l.tracer.Start(ctx, "cognitive.process_input", trace.WithAttributes(
		attribute.String("decision.id", id),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := core.PanicError(r)
			l.log.LogError("cognitive loop panicked", "decision_id", id, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			decision = core.FallbackDecision(id, err.Error())
			l.remember(decision)
		}
	}()

	var reasons []string
	note := func(reason string) {
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}

	u := runStage(ctx, l, StageUnderstand, l.fallbackUnderstanding(), func(ctx context.Context) core.Result[core.Understanding] {
		return l.understand(ctx, input)
	})
	note(u.Reason())

	r := runStage(ctx, l, StageReason, core.DefaultReasoning(), func(ctx context.Context) core.Result[core.Reasoning] {
		return l.reason(ctx, u.Value)
	})
	note(r.Reason())

	d := runStage(ctx, l, StageDecide, core.FallbackDecision(id, "decide stage failed"), func(ctx context.Context) core.Result[core.Decision] {
		return l.decide(ctx, id, input, u.Value, r.Value)
	})
	note(d.Reason())

	decision = d.Value
	decision.DegradationReasons = append(slices.Clone(decision.DegradationReasons), reasons...)
	decision.Degraded = len(decision.DegradationReasons) > 0

	x := runStage(ctx, l, StageExecute, decision, func(ctx context.Context) core.Result[core.Decision] {
		return l.execute(ctx, decision, input, u.Value)
	})
	decision = x.Value
	if x.Degraded() {
		decision.DegradationReasons = append(decision.DegradationReasons, x.Reason())
		decision.Degraded = true
	}

	l.remember(decision)
	l.emit(ctx, core.ChannelDecisionMade, core.DecisionMade{Decision: decision})

	ln := runStage(ctx, l, StageLearn, struct{}{}, func(ctx context.Context) core.Result[struct{}] {
		return l.learn(ctx, input, decision, u.Value)
	})
	if ln.Degraded() {
		// The decision is already out; learning failures are only logged.
		l.log.LogWarn("learning skipped", "decision_id", id, "error", ln.Err)
	}

	span.SetAttributes(
		attribute.String("decision.agent", decision.Agent),
		attribute.String("decision.action", decision.Action),
		attribute.String("decision.priority", decision.Priority.String()),
		attribute.Bool("decision.degraded", decision.Degraded),
	)
	l.metrics.IncDecision(decision.Agent, decision.Priority.String())
	l.logDecision(decision)
	return decision
}

// runStage runs one stage under its own span, converts panics into a
// fallback result and records timing and failures.
func runStage[T any](ctx context.Context, l *Loop, stage string, fallback T, fn func(ctx context.Context) core.Result[T]) core.Result[T] {
	ctx, span := l.tracer.Start(ctx, "cognitive."+stage)
	defer span.End()

	start := time.Now()
	res := func() (res core.Result[T]) {
		defer func() {
			if r := recover(); r != nil {
				res = core.Fail(fallback, core.NewStageError(stage, core.KindStageFailure, core.PanicError(r)))
			}
		}()
		return fn(ctx)
	}()
	dur := time.Since(start)

	status := "ok"
	if res.Degraded() {
		status = "degraded"
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		l.metrics.IncStageFailure(stage, res.Err.Kind.String())
	}
	l.metrics.ObserveStage(stage, status, dur)
	l.logStage(stage, dur, res.Err)
	return res
}

func (l *Loop) remember(d core.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, d)
	if over := len(l.history) - l.historyLimit; over > 0 {
		l.history = slices.Delete(l.history, 0, over)
	}
	l.seen++
}

// GetDecisionHistory returns the retained decisions, oldest first.
func (l *Loop) GetDecisionHistory() []core.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.history)
}

// PatternCounts returns how often each "{agent}:{action}" pair was decided.
func (l *Loop) PatternCounts() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.patterns)
}

// Attach subscribes the loop to user:input and, when AnalysisInterval is
// set, schedules AnalyzePatterns on the kernel. Attaching twice is a no-op.
func (l *Loop) Attach() error {
	l.attachMu.Lock()
	defer l.attachMu.Unlock()
	if l.unsub != nil {
		return nil
	}

	if l.analysisInterval > 0 {
		task, err := l.kernel.Schedule(PatternAnalysisTask, l.analysisInterval, func(ctx context.Context) {
			l.AnalyzePatterns(ctx)
		})
		if err != nil {
			return fmt.Errorf("schedule pattern analysis: %w", err)
		}
		l.task = task
	}

	l.unsub = bus.OnPayload(l.kernel, core.ChannelUserInput, func(ctx context.Context, _ core.Event, data core.UserInput) error {
		l.ProcessInput(ctx, data.Input)
		return nil
	})
	return nil
}

// Detach reverses Attach.
func (l *Loop) Detach() {
	l.attachMu.Lock()
	defer l.attachMu.Unlock()
	if l.unsub != nil {
		l.unsub()
		l.unsub = nil
	}
	if l.task != nil {
		l.task.Cancel()
		l.task = nil
	}
}

// AnalyzePatterns summarises the most frequent interaction patterns and the
// decision counts, and publishes the summary on cognitive:pattern_analysis.
func (l *Loop) AnalyzePatterns(ctx context.Context) core.PatternAnalysis {
	top := l.store.Patterns()
	if len(top) > DefaultTopPatterns {
		top = top[:DefaultTopPatterns]
	}

	l.mu.Lock()
	analysis := core.PatternAnalysis{
		TopPatterns:    top,
		DecisionCounts: maps.Clone(l.patterns),
		DecisionsSeen:  l.seen,
	}
	l.mu.Unlock()

	l.log.LogDebug("pattern analysis", "top_patterns", len(top), "decisions_seen", analysis.DecisionsSeen)
	l.emit(ctx, core.ChannelPatternAnalysis, analysis)
	return analysis
}

// emit publishes through the kernel, falls back to the bus directly and
// finally to the log. It returns the kernel error, if any.
func (l *Loop) emit(ctx context.Context, eventType string, data core.Payload) error {
	ev := core.NewEvent(eventType, data).WithSource(Source)
	kerr := l.kernel.Emit(ctx, ev)
	if kerr == nil {
		return nil
	}
	if b := l.kernel.Bus(); b != nil {
		if err := b.Emit(ctx, ev); err == nil {
			l.log.LogDebug("event delivered via bus fallback", "event_type", eventType, "kernel_error", kerr)
			return kerr
		}
	}
	l.log.LogWarn("event dropped", "event_type", eventType, "error", kerr)
	return kerr
}

type stageLogger interface {
	LogStage(stage string, dur time.Duration, err error)
}

type decisionLogger interface {
	LogDecision(agent, action, priority string, degraded bool)
}

func (l *Loop) logStage(stage string, dur time.Duration, serr *core.StageError) {
	var err error
	if serr != nil {
		err = serr
	}
	if sl, ok := l.log.Logger().(stageLogger); ok {
		sl.LogStage(stage, dur, err)
		return
	}
	if err != nil {
		l.log.LogWarn("stage degraded", "stage", stage, "duration", dur, "error", err)
		return
	}
	l.log.LogDebug("stage completed", "stage", stage, "duration", dur)
}

func (l *Loop) logDecision(d core.Decision) {
	if dl, ok := l.log.Logger().(decisionLogger); ok {
		dl.LogDecision(d.Agent, d.Action, d.Priority.String(), d.Degraded)
		return
	}
	l.log.LogInfo("decision made", "agent", d.Agent, "action", d.Action, "priority", d.Priority.String(), "degraded", d.Degraded)
}
