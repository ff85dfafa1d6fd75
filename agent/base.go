package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hupe1980/rare/bus"
	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
)

// ErrUnsupportedAction is published when an engine receives an action it has
// no handler for.
var ErrUnsupportedAction = errors.New("unsupported action")

// Result is what an ActionFunc hands back for publication.
type Result struct {
	Output string
	Data   map[string]any
}

// ActionFunc performs one action for an execute command.
type ActionFunc func(ctx context.Context, cmd core.ExecuteCommand) (Result, error)

// BaseOptions configures a Base.
type BaseOptions struct {
	Name        string
	Version     string
	Description string

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// ActionTimeout bounds a single action. Zero means no timeout.
	ActionTimeout time.Duration
}

// Base bundles identity, lifecycle bookkeeping and execute-channel dispatch.
// Embed it in concrete engines and register handlers with Handle. All
// exported methods are goroutine-safe.
type Base struct {
	id          string
	name        string
	version     string
	description string
	timeout     time.Duration
	log         core.LoggerAdapter

	mu          sync.Mutex
	kernel      core.KernelHandle
	unsub       core.Unsubscribe
	initialized bool
	running     bool
	cancel      context.CancelFunc // cancels in-flight work on Stop
	workCtx     context.Context
	actions     map[string]ActionFunc

	inflight sync.WaitGroup
}

// NewBase constructs a Base for the engine id.
func NewBase(id string, optFns ...func(o *BaseOptions)) *Base {
	opts := BaseOptions{
		Name:        id,
		Version:     "1.0.0",
		Description: fmt.Sprintf("Engine %s", id),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Base{
		id:          id,
		name:        opts.Name,
		version:     opts.Version,
		description: opts.Description,
		timeout:     opts.ActionTimeout,
		log:         core.NewLoggerAdapter(logging.ForEngine(opts.Logger, id)),
		actions:     make(map[string]ActionFunc),
	}
}

// ID implements core.Engine.
func (b *Base) ID() string { return b.id }

// Name returns the human-readable name.
func (b *Base) Name() string { return b.name }

// Description returns a detailed description of this engine's purpose.
func (b *Base) Description() string { return b.description }

// Handle registers fn for action, replacing any previous handler.
func (b *Base) Handle(action string, fn ActionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions[action] = fn
}

// Actions lists the handled actions.
func (b *Base) Actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.actions))
	for a := range b.actions {
		out = append(out, a)
	}
	return out
}

// Initialize implements core.Engine. It subscribes to agent:{id}:execute;
// calling it again only refreshes the kernel handle.
func (b *Base) Initialize(_ context.Context, cfg core.EngineConfig) error {
	if cfg.Kernel == nil {
		return fmt.Errorf("initialize %s: nil kernel: %w", b.id, core.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kernel = cfg.Kernel
	if b.unsub == nil {
		b.unsub = bus.OnPayload(cfg.Kernel, core.ExecuteChannel(b.id), b.onExecute)
	}
	b.initialized = true
	return nil
}

// Start implements core.Engine.
func (b *Base) Start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return fmt.Errorf("start %s: not initialized", b.id)
	}
	if b.workCtx == nil {
		b.workCtx, b.cancel = context.WithCancel(context.Background())
	}
	b.running = true
	b.log.LogDebug("engine started")
	return nil
}

// Stop implements core.Engine. In-flight actions are cancelled and awaited
// until ctx expires.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.running = false
	cancel := b.cancel
	b.cancel, b.workCtx = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.log.LogDebug("engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", b.id, ctx.Err())
	}
}

// Pause implements core.Pauser. In-flight actions finish; new commands are
// rejected until Resume.
func (b *Base) Pause(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}

// Resume implements core.Resumer.
func (b *Base) Resume(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.workCtx == nil {
		return fmt.Errorf("resume %s: %w", b.id, core.ErrEngineNotRunning)
	}
	b.running = true
	return nil
}

// Status implements core.Engine.
func (b *Base) Status() core.EngineStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.EngineStatus{
		ID:          b.id,
		Name:        b.name,
		Version:     b.version,
		Initialized: b.initialized,
		Running:     b.running,
	}
}

// Running reports whether commands are accepted.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Wait blocks until all in-flight actions have returned.
func (b *Base) Wait() { b.inflight.Wait() }

func (b *Base) onExecute(ctx context.Context, _ core.Event, cmd core.ExecuteCommand) error {
	b.mu.Lock()
	running, workCtx := b.running, b.workCtx
	fn, ok := b.actions[cmd.Action]
	if running && ok {
		b.inflight.Add(1)
	}
	b.mu.Unlock()

	switch {
	case !running:
		b.publishFailure(ctx, cmd, core.ErrEngineNotRunning)
		return nil
	case !ok:
		b.publishFailure(ctx, cmd, fmt.Errorf("%s: %w", cmd.Action, ErrUnsupportedAction))
		return nil
	}

	go func() {
		defer b.inflight.Done()
		runCtx := workCtx
		if b.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, b.timeout)
			defer cancel()
		}
		res, err := invoke(runCtx, fn, cmd)
		if err != nil {
			b.log.LogWarn("action failed", "action", cmd.Action, "error", err)
			b.publishFailure(runCtx, cmd, err)
			return
		}
		b.publish(runCtx, core.ResultChannel(b.id, core.OutcomeResponse), core.AgentResult{
			EngineID:   b.id,
			DecisionID: cmd.DecisionID,
			Action:     cmd.Action,
			Output:     res.Output,
			Data:       maps.Clone(res.Data),
		})
	}()
	return nil
}

func invoke(ctx context.Context, fn ActionFunc, cmd core.ExecuteCommand) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.PanicError(r)
		}
	}()
	return fn(ctx, cmd)
}

func (b *Base) publishFailure(ctx context.Context, cmd core.ExecuteCommand, err error) {
	b.publish(ctx, core.ResultChannel(b.id, core.OutcomeError), core.AgentFailure{
		EngineID:   b.id,
		DecisionID: cmd.DecisionID,
		Action:     cmd.Action,
		Error:      err.Error(),
	})
}

// EmitDomainEvent publishes an engine specific event such as
// builder:app_built.
func (b *Base) EmitDomainEvent(ctx context.Context, eventType string, data map[string]any) {
	b.publish(ctx, eventType, core.DomainEvent{Name: eventType, Data: data})
}

func (b *Base) publish(ctx context.Context, eventType string, data core.Payload) {
	b.mu.Lock()
	k := b.kernel
	b.mu.Unlock()
	if k == nil {
		return
	}
	// Results outlive the action's context; a cancelled ctx must not drop them.
	if err := k.Emit(context.WithoutCancel(ctx), core.NewEvent(eventType, data).WithSource(b.id)); err != nil {
		b.log.LogWarn("engine event dropped", "event_type", eventType, "error", err)
	}
}

// stringParam reads a string parameter, returning "" when absent.
func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

var (
	_ core.Engine  = (*Base)(nil)
	_ core.Pauser  = (*Base)(nil)
	_ core.Resumer = (*Base)(nil)
)
