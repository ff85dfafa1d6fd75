package core

import "context"

// KernelHandle is the narrow view of the kernel handed to engines during
// initialization. Engines use it to subscribe to their execute channel and to
// publish results; they never drive their own lifecycle.
type KernelHandle interface {
	Emit(ctx context.Context, ev Event) error
	On(pattern string, h Handler) Unsubscribe
}

// EngineConfig is passed to Engine.Initialize.
type EngineConfig struct {
	Kernel KernelHandle
}

// EngineStatus is the self-reported state of an engine.
type EngineStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Initialized bool   `json:"initialized"`
	Running     bool   `json:"running"`
}

// Engine is a pluggable worker controlled by the kernel.
//
// Implementations must:
//   - Return a stable, unique ID
//   - Perform real work asynchronously in response to execute events
//   - Leave lifecycle decisions to the kernel (never start or stop themselves)
type Engine interface {
	ID() string
	Initialize(ctx context.Context, cfg EngineConfig) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() EngineStatus
}

// Pauser is implemented by engines that support pausing.
type Pauser interface {
	Pause(ctx context.Context) error
}

// Resumer is implemented by engines that support resuming after a pause.
type Resumer interface {
	Resume(ctx context.Context) error
}
