package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/rare/bus"
	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
	"github.com/hupe1980/rare/metrics"
)

const tracerName = "github.com/hupe1980/rare/kernel"

// Source is the event source used for events emitted by the kernel itself.
const Source = "kernel"

// Options configures a Kernel.
type Options struct {
	// Bus carries every event. When nil the kernel creates its own bus and
	// closes it on Stop; an injected bus is left open.
	Bus *bus.Bus

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Metrics counts lifecycle actions and notifications. Optional.
	Metrics *metrics.Metrics

	// TracerProvider creates spans for lifecycle actions. Defaults to the
	// global provider.
	TracerProvider trace.TracerProvider

	// StopTimeout bounds each engine's Stop during kernel shutdown.
	StopTimeout time.Duration

	// Callbacks receives lifecycle hooks. Defaults to an empty manager.
	Callbacks *CallbackManager

	// Clock stamps LastActivity. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultStopTimeout bounds a single engine's Stop during shutdown.
const DefaultStopTimeout = 10 * time.Second

type entry struct {
	engine core.Engine

	// actionMu serialises lifecycle actions on this engine.
	actionMu sync.Mutex

	// Guarded by Kernel.mu.
	state       core.EngineState
	lifecycle   core.AgentLifecycle
	initialized bool
}

// Kernel owns the event bus, the engine registry and the scheduled tasks.
// It is safe for concurrent use.
type Kernel struct {
	log         core.LoggerAdapter
	bus         *bus.Bus
	ownsBus     bool
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	stopTimeout time.Duration
	callbacks   *CallbackManager
	now         func() time.Time
	scheduler   *scheduler

	// opMu serialises kernel-wide transitions.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   core.KernelState
	engines map[string]*entry
	order   []string
}

// New creates a Kernel in the Uninitialized state.
func New(optFns ...func(o *Options)) *Kernel {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		StopTimeout: DefaultStopTimeout,
		Clock:       time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ownsBus := false
	if opts.Bus == nil {
		opts.Bus = bus.New(func(o *bus.Options) {
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		})
		ownsBus = true
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	log := core.NewLoggerAdapter(opts.Logger)
	return &Kernel{
		log:         log,
		bus:         opts.Bus,
		ownsBus:     ownsBus,
		metrics:     opts.Metrics,
		tracer:      opts.TracerProvider.Tracer(tracerName),
		stopTimeout: opts.StopTimeout,
		callbacks:   opts.Callbacks,
		now:         opts.Clock,
		scheduler:   newScheduler(log),
		state:       core.KernelUninitialized,
		engines:     make(map[string]*entry),
	}
}

// Bus returns the underlying event bus.
func (k *Kernel) Bus() *bus.Bus { return k.bus }

// Callbacks returns the lifecycle hook registry.
func (k *Kernel) Callbacks() *CallbackManager { return k.callbacks }

// State returns the kernel-wide state.
func (k *Kernel) State() core.KernelState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// Emit publishes ev on the bus. It fails with core.ErrKernelStopped once the
// kernel has been stopped.
func (k *Kernel) Emit(ctx context.Context, ev core.Event) error {
	if k.State() == core.KernelStopped {
		return core.ErrKernelStopped
	}
	return k.bus.Emit(ctx, ev)
}

// On subscribes h to events matching pattern.
func (k *Kernel) On(pattern string, h core.Handler) core.Unsubscribe {
	return k.bus.On(pattern, h)
}

// emit publishes a kernel-originated event, logging instead of failing.
func (k *Kernel) emit(ctx context.Context, eventType string, data core.Payload) {
	if err := k.bus.Emit(ctx, core.NewEvent(eventType, data).WithSource(Source)); err != nil {
		k.log.LogWarn("kernel event dropped", "event_type", eventType, "error", err)
	}
}

func (k *Kernel) setState(ctx context.Context, to core.KernelState) {
	k.mu.Lock()
	from := k.state
	k.state = to
	k.mu.Unlock()
	if from == to {
		return
	}
	k.log.LogInfo("kernel state changed", "from", from, "to", to)
	k.callbacks.execute(ctx, CallbackOnKernelStateChange, &CallbackContext{KernelFrom: from, KernelTo: to})
	k.emit(ctx, core.ChannelKernelStateChanged, core.KernelStateChanged{From: from, To: to})
}

// Init initializes every registered engine. It is idempotent; engines whose
// Initialize fails stay registered but are reported on agent:lifecycle_error.
func (k *Kernel) Init(ctx context.Context) error {
	k.opMu.Lock()
	defer k.opMu.Unlock()
	return k.initLocked(ctx)
}

func (k *Kernel) initLocked(ctx context.Context) error {
	switch k.State() {
	case core.KernelStopped:
		return core.ErrKernelStopped
	case core.KernelUninitialized:
	default:
		return nil
	}
	for _, en := range k.entries() {
		if err := k.initializeEngine(ctx, en); err != nil {
			k.reportLifecycleError(ctx, en.engine.ID(), "initialize", err)
		}
	}
	k.setState(ctx, core.KernelInitialized)
	return nil
}

func (k *Kernel) initializeEngine(ctx context.Context, en *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.PanicError(r)
		}
	}()
	if err := en.engine.Initialize(ctx, core.EngineConfig{Kernel: k}); err != nil {
		return fmt.Errorf("initialize engine %s: %w", en.engine.ID(), err)
	}
	k.mu.Lock()
	en.initialized = true
	k.mu.Unlock()
	return nil
}

// Start initializes the kernel if needed, starts every stopped engine
// concurrently and arms scheduled tasks. Individual engine failures are
// isolated. Starting a paused kernel resumes it.
func (k *Kernel) Start(ctx context.Context) error {
	k.opMu.Lock()
	defer k.opMu.Unlock()

	switch k.State() {
	case core.KernelStopped:
		return core.ErrKernelStopped
	case core.KernelRunning:
		return nil
	case core.KernelPaused:
		return k.resumeLocked(ctx)
	case core.KernelUninitialized:
		if err := k.initLocked(ctx); err != nil {
			return err
		}
	}

	k.forEach(ctx, "kernel start", func(ctx context.Context, en *entry) error {
		if k.engineState(en) != core.EngineStopped {
			return nil
		}
		return k.runAction(ctx, en, core.ActionStart, "kernel start")
	})
	k.setState(ctx, core.KernelRunning)
	k.scheduler.start()
	return nil
}

// Pause suspends scheduled tasks and pauses every running engine that
// implements core.Pauser.
func (k *Kernel) Pause(ctx context.Context) error {
	k.opMu.Lock()
	defer k.opMu.Unlock()

	switch k.State() {
	case core.KernelPaused:
		return nil
	case core.KernelRunning:
	default:
		return fmt.Errorf("pause kernel in state %s: %w", k.State(), core.ErrInvalidTransition)
	}

	k.scheduler.suspend()
	k.forEach(ctx, "kernel pause", func(ctx context.Context, en *entry) error {
		if _, ok := en.engine.(core.Pauser); !ok || k.engineState(en) != core.EngineRunning {
			return nil
		}
		return k.runAction(ctx, en, core.ActionPause, "kernel pause")
	})
	k.setState(ctx, core.KernelPaused)
	return nil
}

// Resume resumes every paused engine that implements core.Resumer and
// re-arms scheduled tasks.
func (k *Kernel) Resume(ctx context.Context) error {
	k.opMu.Lock()
	defer k.opMu.Unlock()

	switch k.State() {
	case core.KernelRunning:
		return nil
	case core.KernelPaused:
		return k.resumeLocked(ctx)
	default:
		return fmt.Errorf("resume kernel in state %s: %w", k.State(), core.ErrInvalidTransition)
	}
}

func (k *Kernel) resumeLocked(ctx context.Context) error {
	k.forEach(ctx, "kernel resume", func(ctx context.Context, en *entry) error {
		if _, ok := en.engine.(core.Resumer); !ok || k.engineState(en) != core.EnginePaused {
			return nil
		}
		return k.runAction(ctx, en, core.ActionResume, "kernel resume")
	})
	k.setState(ctx, core.KernelRunning)
	k.scheduler.start()
	return nil
}

// Stop cancels scheduled tasks and stops every running or paused engine,
// each bounded by the stop timeout. It is idempotent. A bus created by the
// kernel is closed afterwards.
func (k *Kernel) Stop(ctx context.Context) error {
	k.opMu.Lock()
	defer k.opMu.Unlock()

	if k.State() == core.KernelStopped {
		return nil
	}

	k.scheduler.stop()
	k.forEach(ctx, "kernel stop", func(ctx context.Context, en *entry) error {
		switch k.engineState(en) {
		case core.EngineRunning, core.EnginePaused:
			stopCtx, cancel := context.WithTimeout(ctx, k.stopTimeout)
			defer cancel()
			return k.runAction(stopCtx, en, core.ActionStop, "kernel stop")
		}
		return nil
	})
	k.setState(ctx, core.KernelStopped)

	if k.ownsBus {
		k.bus.Close()
	}
	return nil
}

// forEach runs fn for every registered engine concurrently and waits. Engine
// failures never abort the transition; the first one is logged under op.
func (k *Kernel) forEach(ctx context.Context, op string, fn func(ctx context.Context, en *entry) error) {
	var g errgroup.Group
	for _, en := range k.entries() {
		g.Go(func() error {
			if err := fn(ctx, en); err != nil {
				return fmt.Errorf("engine %s: %w", en.engine.ID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		k.log.LogWarn(op+" completed with engine failures", "error", err)
	}
}

// RegisterEngine adds e to the registry with a default lifecycle. Duplicate
// ids are rejected with core.ErrDuplicateEngine and leave the registry
// unchanged. When the kernel is already initialized the engine is
// initialized immediately; if that fails it is removed again.
func (k *Kernel) RegisterEngine(ctx context.Context, e core.Engine) error {
	if e == nil {
		return fmt.Errorf("register engine: %w", core.ErrInvalidInput)
	}
	id := e.ID()

	k.mu.Lock()
	if k.state == core.KernelStopped {
		k.mu.Unlock()
		return core.ErrKernelStopped
	}
	if _, exists := k.engines[id]; exists {
		k.mu.Unlock()
		k.log.LogWarn("engine already registered", "engine_id", id)
		return fmt.Errorf("register engine %s: %w", id, core.ErrDuplicateEngine)
	}
	en := &entry{
		engine:    e,
		state:     core.EngineStopped,
		lifecycle: core.NewAgentLifecycle(id, k.now()),
	}
	k.engines[id] = en
	k.order = append(k.order, id)
	initialize := k.state != core.KernelUninitialized
	k.mu.Unlock()

	k.log.LogInfo("engine registered", "engine_id", id)
	if !initialize {
		return nil
	}
	if err := k.initializeEngine(ctx, en); err != nil {
		k.removeEntry(id)
		return err
	}
	return nil
}

// UnregisterEngine stops the engine if it is running or paused and removes
// it from the registry.
func (k *Kernel) UnregisterEngine(ctx context.Context, id string) error {
	en, ok := k.entry(id)
	if !ok {
		return fmt.Errorf("unregister engine %s: %w", id, core.ErrEngineNotFound)
	}
	switch k.engineState(en) {
	case core.EngineRunning, core.EnginePaused:
		if err := k.runAction(ctx, en, core.ActionStop, "unregister"); err != nil {
			k.log.LogWarn("engine stop failed during unregister", "engine_id", id, "error", err)
		}
	}
	k.removeEntry(id)
	k.log.LogInfo("engine unregistered", "engine_id", id)
	return nil
}

func (k *Kernel) removeEntry(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.engines, id)
	for i, existing := range k.order {
		if existing == id {
			k.order = append(k.order[:i:i], k.order[i+1:]...)
			break
		}
	}
}

func (k *Kernel) entry(id string) (*entry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	en, ok := k.engines[id]
	return en, ok
}

func (k *Kernel) entries() []*entry {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*entry, 0, len(k.order))
	for _, id := range k.order {
		out = append(out, k.engines[id])
	}
	return out
}

func (k *Kernel) engineState(en *entry) core.EngineState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return en.state
}

// GetEngine returns the registered engine with the given id.
func (k *Kernel) GetEngine(id string) (core.Engine, bool) {
	en, ok := k.entry(id)
	if !ok {
		return nil, false
	}
	return en.engine, true
}

// HasEngine reports whether an engine with id is registered.
func (k *Kernel) HasEngine(id string) bool {
	_, ok := k.entry(id)
	return ok
}

// EngineState returns the kernel-tracked state of an engine.
func (k *Kernel) EngineState(id string) (core.EngineState, bool) {
	en, ok := k.entry(id)
	if !ok {
		return "", false
	}
	return k.engineState(en), true
}

// IsEngineRunning reports whether the engine is in the Running state.
func (k *Kernel) IsEngineRunning(id string) bool {
	state, ok := k.EngineState(id)
	return ok && state.IsRunning()
}

// Lifecycle returns a copy of the engine's lifecycle flags.
func (k *Kernel) Lifecycle(id string) (core.AgentLifecycle, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	en, ok := k.engines[id]
	if !ok {
		return core.AgentLifecycle{}, false
	}
	return en.lifecycle, true
}

// Engines returns the status of every registered engine in registration order.
func (k *Kernel) Engines() []core.EngineStatus {
	entries := k.entries()
	out := make([]core.EngineStatus, 0, len(entries))
	for _, en := range entries {
		status := en.engine.Status()
		k.mu.RLock()
		status.Initialized = status.Initialized || en.initialized
		status.Running = en.state.IsRunning()
		k.mu.RUnlock()
		out = append(out, status)
	}
	return out
}
