package asyncrt

import (
	"context"
	"errors"
)

// ErrNotCompleted is returned when a result is read before completion.
var ErrNotCompleted = errors.New("asyncrt: result read before completion")

// Future is a completion cell without a value.
type Future struct {
	completion
}

// NewFuture returns a pending future.
func NewFuture() *Future { return &Future{} }

// Completed returns an already completed future.
func Completed() *Future {
	f := NewFuture()
	f.Complete()
	return f
}

// FailedFuture returns a future faulted with err.
func FailedFuture(err error) *Future {
	f := NewFuture()
	f.Fail(err)
	return f
}

// Bind makes continuations of f run through s.
func (f *Future) Bind(s Scheduler) *Future {
	f.sched = s
	return f
}

// Complete marks f successful. It reports false if f was already done.
func (f *Future) Complete() bool {
	wakers, ok := f.finish(nil, nil)
	f.wake(wakers)
	return ok
}

// Fail faults f with err.
func (f *Future) Fail(err error) bool {
	if err == nil {
		err = errors.New("asyncrt: fail with nil error")
	}
	wakers, ok := f.finish(err, nil)
	f.wake(wakers)
	return ok
}

func (f *Future) IsCompleted() bool { return f.isCompleted() }

// Err returns the failure, ErrNotCompleted while pending.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.done {
		return ErrNotCompleted
	}
	return f.err
}

// Wait blocks until f completes or ctx is done.
func (f *Future) Wait(ctx context.Context) error { return f.wait(ctx) }

// GetAwaiter returns the awaiter used by lowered code.
func (f *Future) GetAwaiter() FutureAwaiter { return FutureAwaiter{f: f} }

// ConfigureAwait selects whether continuations resume through the bound
// scheduler (true) or on the completing goroutine (false).
func (f *Future) ConfigureAwait(onContext bool) ConfiguredFuture {
	return ConfiguredFuture{f: f, onContext: onContext}
}

// FutureAwaiter awaits a Future.
type FutureAwaiter struct {
	f      *Future
	inline bool
}

func (a FutureAwaiter) IsCompleted() bool     { return a.f.IsCompleted() }
func (a FutureAwaiter) OnCompleted(fn func()) { a.f.onCompleted(fn, a.inline) }
func (a FutureAwaiter) GetResult() error      { return a.f.Err() }

// ConfiguredFuture is a Future with a chosen resume policy.
type ConfiguredFuture struct {
	f         *Future
	onContext bool
}

func (c ConfiguredFuture) GetAwaiter() FutureAwaiter {
	return FutureAwaiter{f: c.f, inline: !c.onContext}
}

// Task is a completion cell producing a T.
type Task[T any] struct {
	completion
	value T
}

// NewTask returns a pending task.
func NewTask[T any]() *Task[T] { return &Task[T]{} }

// FromResult returns a task completed with v.
func FromResult[T any](v T) *Task[T] {
	t := NewTask[T]()
	t.Complete(v)
	return t
}

// FromError returns a task faulted with err.
func FromError[T any](err error) *Task[T] {
	t := NewTask[T]()
	t.Fail(err)
	return t
}

// Bind makes continuations of t run through s.
func (t *Task[T]) Bind(s Scheduler) *Task[T] {
	t.sched = s
	return t
}

// Complete stores v and wakes waiters. It reports false if t was done.
func (t *Task[T]) Complete(v T) bool {
	wakers, ok := t.finish(nil, func() { t.value = v })
	t.wake(wakers)
	return ok
}

// Fail faults t with err.
func (t *Task[T]) Fail(err error) bool {
	if err == nil {
		err = errors.New("asyncrt: fail with nil error")
	}
	wakers, ok := t.finish(err, nil)
	t.wake(wakers)
	return ok
}

func (t *Task[T]) IsCompleted() bool { return t.isCompleted() }

// Result returns the outcome, ErrNotCompleted while pending.
func (t *Task[T]) Result() (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		var zero T
		return zero, ErrNotCompleted
	}
	return t.value, t.err
}

// Wait blocks until t completes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	if err := t.wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return t.Result()
}

func (t *Task[T]) GetAwaiter() TaskAwaiter[T] { return TaskAwaiter[T]{t: t} }

func (t *Task[T]) ConfigureAwait(onContext bool) ConfiguredTask[T] {
	return ConfiguredTask[T]{t: t, onContext: onContext}
}

// TaskAwaiter awaits a Task.
type TaskAwaiter[T any] struct {
	t      *Task[T]
	inline bool
}

func (a TaskAwaiter[T]) IsCompleted() bool     { return a.t.IsCompleted() }
func (a TaskAwaiter[T]) OnCompleted(fn func()) { a.t.onCompleted(fn, a.inline) }
func (a TaskAwaiter[T]) GetResult() (T, error) { return a.t.Result() }

// ConfiguredTask is a Task with a chosen resume policy.
type ConfiguredTask[T any] struct {
	t         *Task[T]
	onContext bool
}

func (c ConfiguredTask[T]) GetAwaiter() TaskAwaiter[T] {
	return TaskAwaiter[T]{t: c.t, inline: !c.onContext}
}
