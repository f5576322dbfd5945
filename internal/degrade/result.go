// Package degrade carries the outcome of a best-effort collaborator call:
// either the real value, or a documented fallback plus the cause.
package degrade

// Result holds a value that may be a fallback. Callers branch on Degraded
// instead of checking a nil error, which keeps the degraded path visible.
type Result[T any] struct {
	Value T
	Cause error
}

// OK wraps a value produced by the collaborator.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fallback wraps the documented degraded value together with its cause.
func Fallback[T any](v T, cause error) Result[T] {
	return Result[T]{Value: v, Cause: cause}
}

// Degraded reports whether Value is a fallback.
func (r Result[T]) Degraded() bool {
	return r.Cause != nil
}
