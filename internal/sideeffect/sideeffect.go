// Package sideeffect gives best-effort operations (email, drive archive,
// webhook emission) an explicit result value instead of a swallowed error.
// Callers log a non-nil Err and continue; they never fold it back into the
// primary transaction's error.
package sideeffect

import "github.com/rs/zerolog"

// Result is the outcome of a best-effort side effect that must never abort
// the caller's primary mutation.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful side-effect value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a side-effect failure. The caller is expected to log it, not
// propagate it.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// Log warns on a non-nil Err, tagging the log line with action. It is a
// no-op on success.
func (r Result[T]) Log(log zerolog.Logger, action string) {
	if r.Err != nil {
		log.Warn().Err(r.Err).Str("action", action).Msg("best-effort side effect failed")
	}
}

// OK reports whether the side effect succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }
