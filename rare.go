// Package rare wires the event bus, the context store, the kernel and the
// cognitive loop into one runtime. Most applications interact with this
// package by:
//  1. Creating a runtime via New (optionally overriding persistence, logging
//     and metrics)
//  2. Registering engines with RegisterEngine
//  3. Calling Start, then feeding inputs through Submit or ProcessInput
//
// Everything the façade builds is reachable through accessors, so hosts can
// subscribe to bus events or inspect the kernel directly.
package rare

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/rare/bus"
	"github.com/hupe1980/rare/cognitive"
	"github.com/hupe1980/rare/contextstore"
	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/kernel"
	"github.com/hupe1980/rare/logging"
	"github.com/hupe1980/rare/memory"
	"github.com/hupe1980/rare/metrics"
)

// AmbientRefreshTask is the name of the scheduled ambient context refresh.
const AmbientRefreshTask = "context.ambient_refresh"

// DefaultAmbientInterval is how often the ambient context is recomputed.
const DefaultAmbientInterval = time.Minute

// Options configures the runtime.
type Options struct {
	// Persistence stores long-lived memory. Defaults to an in-memory store.
	Persistence core.PersistenceStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Metrics is shared by the bus, the kernel and the loop. Optional.
	Metrics *metrics.Metrics

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	// Clock drives the context store, the kernel and the loop.
	Clock func() time.Time

	// AmbientInterval schedules the ambient refresh. Zero disables it.
	AmbientInterval time.Duration

	// DefaultAppState fills inputs that carry no app state.
	DefaultAppState core.AppState

	// StopTimeout bounds each engine's Stop.
	StopTimeout time.Duration

	// Store and Loop receive extra option functions for the context store
	// and the cognitive loop.
	Store []func(o *contextstore.Options)
	Loop  []func(o *cognitive.Options)
}

// RARE is the runtime façade.
type RARE struct {
	opts   Options
	log    core.LoggerAdapter
	bus    *bus.Bus
	store  *contextstore.Store
	kernel *kernel.Kernel
	loop   *cognitive.Loop

	mu      sync.Mutex
	ambient *kernel.Task
}

// New builds the runtime. Nothing runs until Start.
func New(optFns ...func(o *Options)) *RARE {
	opts := Options{
		Persistence:     memory.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
		Clock:           time.Now,
		AmbientInterval: DefaultAmbientInterval,
		DefaultAppState: core.AppForeground,
		StopTimeout:     kernel.DefaultStopTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := bus.New(func(o *bus.Options) {
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	store := contextstore.New(opts.Persistence, append([]func(o *contextstore.Options){
		func(o *contextstore.Options) {
			o.Clock = opts.Clock
			o.Logger = opts.Logger
		},
	}, opts.Store...)...)

	k := kernel.New(func(o *kernel.Options) {
		o.Bus = b
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.TracerProvider = opts.TracerProvider
		o.StopTimeout = opts.StopTimeout
		o.Clock = opts.Clock
	})

	loop := cognitive.New(k, store, append([]func(o *cognitive.Options){
		func(o *cognitive.Options) {
			o.Clock = opts.Clock
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
			o.TracerProvider = opts.TracerProvider
		},
	}, opts.Loop...)...)

	return &RARE{
		opts:   opts,
		log:    core.NewLoggerAdapter(opts.Logger),
		bus:    b,
		store:  store,
		kernel: k,
		loop:   loop,
	}
}

// Bus returns the shared event bus.
func (r *RARE) Bus() *bus.Bus { return r.bus }

// Kernel returns the engine registry.
func (r *RARE) Kernel() *kernel.Kernel { return r.kernel }

// Store returns the context store.
func (r *RARE) Store() *contextstore.Store { return r.store }

// Loop returns the cognitive loop.
func (r *RARE) Loop() *cognitive.Loop { return r.loop }

// RegisterEngine adds an engine to the kernel. Engines registered before
// Start are started with the kernel; later ones stay stopped until a
// decision starts them.
func (r *RARE) RegisterEngine(ctx context.Context, e core.Engine) error {
	return r.kernel.RegisterEngine(ctx, e)
}

// Start loads persisted memory, starts the kernel and attaches the loop to
// user:input. A failed memory load is logged and leaves memory empty.
func (r *RARE) Start(ctx context.Context) error {
	if err := r.store.Init(ctx); err != nil {
		r.log.LogWarn("memory load failed, starting empty", "error", err)
	}
	if err := r.kernel.Start(ctx); err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}
	if err := r.loop.Attach(); err != nil {
		return fmt.Errorf("attach cognitive loop: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.AmbientInterval > 0 && r.ambient == nil {
		task, err := r.kernel.Schedule(AmbientRefreshTask, r.opts.AmbientInterval, func(context.Context) {
			r.store.UpdateAmbientAwareness()
		})
		if err != nil {
			return fmt.Errorf("schedule ambient refresh: %w", err)
		}
		r.ambient = task
	}
	r.log.LogInfo("rare started", "engines", len(r.kernel.Engines()))
	return nil
}

// Stop detaches the loop, stops the kernel, flushes pending memory writes
// and closes the bus.
func (r *RARE) Stop(ctx context.Context) error {
	r.loop.Detach()

	r.mu.Lock()
	if r.ambient != nil {
		r.ambient.Cancel()
		r.ambient = nil
	}
	r.mu.Unlock()

	if err := r.kernel.Stop(ctx); err != nil {
		return fmt.Errorf("stop kernel: %w", err)
	}
	err := r.store.Flush(ctx)
	r.bus.Close()
	if err != nil {
		return fmt.Errorf("flush memory: %w", err)
	}
	return nil
}

// ProcessInput runs one input through the cognitive loop synchronously.
func (r *RARE) ProcessInput(ctx context.Context, input core.Input) core.Decision {
	return r.loop.ProcessInput(ctx, r.withDefaults(input))
}

// Submit publishes input on user:input; the attached loop handles it.
func (r *RARE) Submit(ctx context.Context, input core.Input) error {
	return r.kernel.Emit(ctx, core.NewEvent(core.ChannelUserInput, core.UserInput{Input: r.withDefaults(input)}))
}

func (r *RARE) withDefaults(input core.Input) core.Input {
	if input.AppState == "" {
		input.AppState = r.opts.DefaultAppState
	}
	return input
}
