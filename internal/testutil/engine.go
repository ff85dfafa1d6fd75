package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/rare/bus"
	"github.com/hupe1980/rare/core"
)

// FakeEngine is a scripted core.Engine. It records every lifecycle call,
// captures execute commands sent to its channel and can be told to fail a
// given action. It does not implement Pauser or Resumer; use
// PausableFakeEngine for that.
type FakeEngine struct {
	mu          sync.Mutex
	id          string
	initialized bool
	running     bool
	calls       []string
	failures    map[string]error
	commands    []core.ExecuteCommand
	kernel      core.KernelHandle
	unsub       core.Unsubscribe
}

// NewFakeEngine returns a stopped, uninitialized engine with the given id.
func NewFakeEngine(id string) *FakeEngine {
	return &FakeEngine{id: id, failures: map[string]error{}}
}

// FailOn makes the named action ("initialize", "start", "stop", "pause",
// "resume") return err. A nil err clears the failure.
func (f *FakeEngine) FailOn(action string, err error) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, action)
	} else {
		f.failures[action] = err
	}
	return f
}

func (f *FakeEngine) call(action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	return f.failures[action]
}

// ID implements core.Engine.
func (f *FakeEngine) ID() string { return f.id }

// Initialize implements core.Engine and subscribes to the execute channel.
func (f *FakeEngine) Initialize(_ context.Context, cfg core.EngineConfig) error {
	if err := f.call("initialize"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kernel = cfg.Kernel
	f.initialized = true
	if cfg.Kernel != nil && f.unsub == nil {
		f.unsub = bus.OnPayload(cfg.Kernel, core.ExecuteChannel(f.id), func(_ context.Context, _ core.Event, cmd core.ExecuteCommand) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.commands = append(f.commands, cmd)
			return nil
		})
	}
	return nil
}

// Start implements core.Engine.
func (f *FakeEngine) Start(context.Context) error {
	if err := f.call("start"); err != nil {
		return err
	}
	f.setRunning(true)
	return nil
}

// Stop implements core.Engine.
func (f *FakeEngine) Stop(context.Context) error {
	if err := f.call("stop"); err != nil {
		return err
	}
	f.setRunning(false)
	return nil
}

// Status implements core.Engine.
func (f *FakeEngine) Status() core.EngineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return core.EngineStatus{ID: f.id, Name: "fake-" + f.id, Version: "test", Initialized: f.initialized, Running: f.running}
}

func (f *FakeEngine) setRunning(v bool) {
	f.mu.Lock()
	f.running = v
	f.mu.Unlock()
}

// Calls returns the recorded lifecycle calls in order.
func (f *FakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how often action was invoked.
func (f *FakeEngine) CallCount(action string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == action {
			n++
		}
	}
	return n
}

// Commands returns the execute commands received so far.
func (f *FakeEngine) Commands() []core.ExecuteCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.commands)
}

// Running reports whether the engine considers itself running.
func (f *FakeEngine) Running() bool { return f.Status().Running }

// PausableFakeEngine is a FakeEngine that also implements core.Pauser and
// core.Resumer.
type PausableFakeEngine struct {
	*FakeEngine
}

// NewPausableFakeEngine returns a pausable fake engine.
func NewPausableFakeEngine(id string) *PausableFakeEngine {
	return &PausableFakeEngine{FakeEngine: NewFakeEngine(id)}
}

// Pause implements core.Pauser.
func (p *PausableFakeEngine) Pause(context.Context) error {
	if err := p.call("pause"); err != nil {
		return err
	}
	p.setRunning(false)
	return nil
}

// Resume implements core.Resumer.
func (p *PausableFakeEngine) Resume(context.Context) error {
	if err := p.call("resume"); err != nil {
		return err
	}
	p.setRunning(true)
	return nil
}

var (
	_ core.Engine  = (*FakeEngine)(nil)
	_ core.Pauser  = (*PausableFakeEngine)(nil)
	_ core.Resumer = (*PausableFakeEngine)(nil)
)
