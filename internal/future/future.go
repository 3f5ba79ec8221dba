// MIT License
//
// Copyright (c) 2026 Tessera Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package future provides a single-assignment completion slot. One side
// registers interest, the other side completes the slot exactly once with
// a value or an error. Completing an already-completed slot is a no-op,
// which is what makes delivery at-most-once under racing writers.
package future

import (
	"context"
	"errors"

	"go.uber.org/atomic"
)

// ErrFutureTimeout is returned when awaiting a future exceeds its deadline.
var ErrFutureTimeout = errors.New("future timeout")

type unit struct{}

// Future is a single-assignment slot for a value of type T.
type Future[T any] struct {
	value     T
	failure   error
	wait      chan unit
	completed atomic.Bool
}

// New creates an unresolved Future.
func New[T any]() *Future[T] {
	return &Future[T]{
		wait: make(chan unit),
	}
}

// Complete resolves the future with a value. It reports whether this call
// won the assignment; a second completion attempt returns false and is
// otherwise ignored.
func (f *Future[T]) Complete(value T) bool {
	if !f.completed.CompareAndSwap(false, true) {
		return false
	}
	f.value = value
	close(f.wait)
	return true
}

// Fail resolves the future with an error. Same single-assignment rules as
// Complete.
func (f *Future[T]) Fail(err error) bool {
	if !f.completed.CompareAndSwap(false, true) {
		return false
	}
	f.failure = err
	close(f.wait)
	return true
}

// Await blocks until the future is resolved or the context is done. A
// context deadline surfaces as ErrFutureTimeout so callers can classify it
// separately from an explicit cancellation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.wait:
		return f.value, f.failure
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrFutureTimeout
		}
		return zero, ctx.Err()
	}
}

// Done reports whether the future has been resolved.
func (f *Future[T]) Done() bool {
	return f.completed.Load()
}
