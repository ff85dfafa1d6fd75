package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	ErrEngineNotFound    = errors.New("engine not found")
	ErrDuplicateEngine   = errors.New("engine already registered")
	ErrEngineNotRunning  = errors.New("engine is not running")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrKernelStopped     = errors.New("kernel is stopped")
	ErrBusClosed         = errors.New("event bus is closed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrVaultLocked       = errors.New("vault is locked")
)

// ErrorKind classifies pipeline and lifecycle failures.
type ErrorKind int

const (
	// KindStageFailure is an unexpected failure inside a pipeline stage.
	KindStageFailure ErrorKind = iota
	// KindInvalidInput is missing or malformed input; Understand degrades to fallbacks.
	KindInvalidInput
	// KindEngineNotFound reroutes the decision to the default engine.
	KindEngineNotFound
	// KindEngineStartFailure is isolated per engine.
	KindEngineStartFailure
	// KindLifecycleActionFailure is reported via agent:lifecycle_error.
	KindLifecycleActionFailure
	// KindEmissionFailure falls back to direct bus emission, then logging.
	KindEmissionFailure
)

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindStageFailure:
		return "stage_failure"
	case KindInvalidInput:
		return "invalid_input"
	case KindEngineNotFound:
		return "engine_not_found"
	case KindEngineStartFailure:
		return "engine_start_failure"
	case KindLifecycleActionFailure:
		return "lifecycle_action_failure"
	case KindEmissionFailure:
		return "emission_failure"
	default:
		return "unknown"
	}
}

// StageError is a typed failure produced by a pipeline stage.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

// NewStageError wraps err with stage and kind.
func NewStageError(stage string, kind ErrorKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap returns the wrapped error.
func (e *StageError) Unwrap() error { return e.Err }

// PanicError converts a recovered panic value into an error.
func PanicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
