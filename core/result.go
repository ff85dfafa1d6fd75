package core

// Result is the outcome of a pipeline stage: a usable value plus an optional
// error. A failed stage still carries a value (its documented fallback), so
// the pipeline can continue and record the degradation instead of aborting.
type Result[T any] struct {
	Value T
	Err   *StageError
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps a fallback value together with the error that forced it.
func Fail[T any](fallback T, err *StageError) Result[T] {
	return Result[T]{Value: fallback, Err: err}
}

// Degraded reports whether the value is a fallback.
func (r Result[T]) Degraded() bool { return r.Err != nil }

// Reason returns the error text or the empty string.
func (r Result[T]) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
