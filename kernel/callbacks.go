package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/rare/core"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks provide a hook into the kernel's lifecycle handling without
// modifying it:
//   - BeforeLifecycleAction: before an engine action runs; an error vetoes it
//   - AfterLifecycleAction: after an engine action succeeded
//   - OnLifecycleError: after an engine action failed or was vetoed
//   - OnKernelStateChange: after a kernel-wide transition
type CallbackType string

const (
	// CallbackBeforeLifecycleAction is triggered before an engine action.
	// Use for validation, policy checks, or instrumentation.
	CallbackBeforeLifecycleAction CallbackType = "before_lifecycle_action"

	// CallbackAfterLifecycleAction is triggered after a successful engine action.
	CallbackAfterLifecycleAction CallbackType = "after_lifecycle_action"

	// CallbackOnLifecycleError is triggered when an engine action fails.
	CallbackOnLifecycleError CallbackType = "on_lifecycle_error"

	// CallbackOnKernelStateChange is triggered when the kernel-wide state changes.
	CallbackOnKernelStateChange CallbackType = "on_kernel_state_change"
)

// CallbackContext describes the lifecycle point a callback runs at. Only the
// fields relevant to the callback type are set.
type CallbackContext struct {
	// EngineID identifies the engine for engine-level callbacks.
	EngineID string

	// Action is the engine action being executed.
	Action core.LifecycleAction

	// From and To are the engine states around the action. For
	// OnLifecycleError To is empty.
	From core.EngineState
	To   core.EngineState

	// KernelFrom and KernelTo are set for OnKernelStateChange.
	KernelFrom core.KernelState
	KernelTo   core.KernelState

	// Err is the failure for OnLifecycleError.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType
}

// Callback is a lifecycle hook.
//
// Implementations should be fast: they run synchronously on the goroutine
// performing the lifecycle action.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic. Only errors returned from
	// BeforeLifecycleAction callbacks have an effect: they veto the action.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	veto := kernel.NewFunctionCallback(
//	    kernel.CallbackBeforeLifecycleAction,
//	    func(ctx context.Context, cc *kernel.CallbackContext) error {
//	        if cc.EngineID == "payments" && cc.Action == core.ActionStart {
//	            return errors.New("payments disabled")
//	        }
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of lifecycle callbacks. Callbacks run in
// registration order; the first error stops the chain. It is safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

func (cm *CallbackManager) execute(ctx context.Context, callbackType CallbackType, callbackCtx *CallbackContext) (err error) {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()
	if len(callbacks) == 0 {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = core.PanicError(r)
		}
	}()
	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback forwards lifecycle points to a log function.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle point.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	if cc.CallbackType == CallbackOnKernelStateChange {
		c.logger(fmt.Sprintf("[%s] kernel: %s -> %s", cc.CallbackType, cc.KernelFrom, cc.KernelTo))
		return nil
	}
	message := fmt.Sprintf("[%s] engine: %s, action: %s, %s -> %s", cc.CallbackType, cc.EngineID, cc.Action, cc.From, cc.To)
	if cc.Err != nil {
		message += ", error: " + cc.Err.Error()
	}
	c.logger(message)
	return nil
}
