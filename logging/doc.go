// Package logging provides a minimal logging interface and adapters for the kernel.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the kernel, the cognitive loop, the context store and engines use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - KernelLogger, a slog-backed logger with component/correlation helpers
//   - SlogAdapter wrapping an existing *slog.Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	k := kernel.New(func(o *kernel.Options) { o.Logger = logger })
//
// Arguments after the message are slog key/value pairs.
package logging
