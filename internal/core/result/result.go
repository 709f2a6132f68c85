// Package result provides a two-variant Result type for expected failure
// paths (not found, upstream lookup failures). Programming errors are
// returned as plain Go errors instead.
package result

import "fmt"

// Result holds either a value or an error kind, never both.
type Result[T any, E comparable] struct {
	value T
	kind  E
	isErr bool
}

// Ok wraps a successful value.
func Ok[T any, E comparable](value T) Result[T, E] {
	return Result[T, E]{value: value}
}

// Error wraps an error kind.
func Error[T any, E comparable](kind E) Result[T, E] {
	return Result[T, E]{kind: kind, isErr: true}
}

// IsError reports whether r carries an error kind.
func IsError[T any, E comparable](r Result[T, E]) bool {
	return r.isErr
}

// GetValue returns the value of a successful result.
// Calling it on an error result is a bug and panics.
func GetValue[T any, E comparable](r Result[T, E]) T {
	if r.isErr {
		panic(fmt.Sprintf("result: GetValue called on error result (%v)", r.kind))
	}
	return r.value
}

// GetError returns the error kind of a failed result.
// Calling it on a successful result is a bug and panics.
func GetError[T any, E comparable](r Result[T, E]) E {
	if !r.isErr {
		panic("result: GetError called on ok result")
	}
	return r.kind
}

// ExhaustiveCheck belongs in the default branch of a switch over an error
// kind. Reaching it means a value outside the declared kinds was produced.
// Kind sets expose Match functions taking one callback per kind, so a new
// kind breaks every caller at compile time; this only guards conversions
// from arbitrary values.
func ExhaustiveCheck[E any](kind E) {
	panic(fmt.Sprintf("result: unhandled error kind %v", kind))
}

// Unhandled is ExhaustiveCheck for functions that must return a value.
func Unhandled[R, E any](kind E) R {
	ExhaustiveCheck(kind)
	panic("unreachable")
}
