// Package awaitutil is the one place the otherwise-asynchronous connection
// engine exposes thread-blocking behavior (spec §4.5, §9 design note "the
// await bridge is the only place..."). It bridges a completion channel to a
// deadline, returning the completion's value, its failure, or a
// TimeoutError naming the operation. On timeout the completion is left in
// place; Await never cancels it — that's the caller's call.
package awaitutil

import (
	"context"
	"time"

	"github.com/mcpcore/client-go/mcperrors"
)

// Completion is a one-shot result slot: Resolve or Reject stores a value or
// an error, and Await returns that outcome.
type Completion[T any] struct {
	result chan result[T]
	once   bool
}

type result[T any] struct {
	val T
	err error
}

// NewCompletion returns a completion slot with room for exactly one result.
func NewCompletion[T any]() *Completion[T] {
	return &Completion[T]{result: make(chan result[T], 1)}
}

// Resolve fulfills the completion with a value. Only the first of
// Resolve/Reject to run has any effect (spec invariant: resolves or fails
// exactly once).
func (c *Completion[T]) Resolve(v T) {
	select {
	case c.result <- result[T]{val: v}:
	default:
	}
}

// Reject fails the completion with err.
func (c *Completion[T]) Reject(err error) {
	select {
	case c.result <- result[T]{err: err}:
	default:
	}
}

// Await blocks the calling goroutine until the completion resolves, the
// context is cancelled, or timeout elapses — whichever comes first. name
// identifies the operation in a TimeoutError.
func Await[T any](ctx context.Context, c *Completion[T], timeout time.Duration, name string) (T, error) {
	var zero T
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case r := <-c.result:
		// Put it back so a second Await call (or the original issuer)
		// can still observe the same outcome.
		c.result <- r
		return r.val, r.err
	case <-deadline:
		return zero, &mcperrors.TimeoutError{Operation: name}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
