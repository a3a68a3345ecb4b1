// Package result carries a value or an error across component boundaries
// without panics.
package result

// Result holds either a value or the error that prevented producing it.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps an error.
func Fail[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Err returns the failure, or nil.
func (r Result[T]) Err() error { return r.err }

// Unwrap returns the value and the error.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// Or returns the value, or fallback when the result failed.
func (r Result[T]) Or(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.value
}
