package asyncrt

import (
	"errors"
	"reflect"
	"sync"
)

// ErrStaleValueTask is returned when a value task is consumed twice or after
// its source was recycled.
var ErrStaleValueTask = errors.New("asyncrt: value task already consumed")

var sourcePools sync.Map // reflect.Type -> *sync.Pool

func poolFor[T any]() *sync.Pool {
	key := reflect.TypeFor[T]()
	if p, ok := sourcePools.Load(key); ok {
		return p.(*sync.Pool)
	}
	p, _ := sourcePools.LoadOrStore(key, &sync.Pool{
		New: func() any { return new(ValueTaskSource[T]) },
	})
	return p.(*sync.Pool)
}

// ValueTaskSource is a recyclable completion cell. Handles produced by Task
// carry the source version; the source returns to its pool once a handle
// reads the result.
type ValueTaskSource[T any] struct {
	completion
	value T
}

// RentValueTask takes a pending source from the pool.
func RentValueTask[T any]() *ValueTaskSource[T] {
	return poolFor[T]().Get().(*ValueTaskSource[T])
}

// Task returns the handle observing the current use of s.
func (s *ValueTaskSource[T]) Task() ValueTask[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ValueTask[T]{src: s, version: s.version}
}

// SetResult completes s with v.
func (s *ValueTaskSource[T]) SetResult(v T) bool {
	wakers, ok := s.finish(nil, func() { s.value = v })
	s.wake(wakers)
	return ok
}

// SetException faults s with err.
func (s *ValueTaskSource[T]) SetException(err error) bool {
	if err == nil {
		err = errors.New("asyncrt: fail with nil error")
	}
	wakers, ok := s.finish(err, nil)
	s.wake(wakers)
	return ok
}

// consume reads the outcome for version and recycles s.
func (s *ValueTaskSource[T]) consume(version uint32) (T, error) {
	var zero T
	s.mu.Lock()
	if s.version != version {
		s.mu.Unlock()
		return zero, ErrStaleValueTask
	}
	if !s.done {
		s.mu.Unlock()
		return zero, ErrNotCompleted
	}
	v, err := s.value, s.err
	s.value = zero
	s.mu.Unlock()
	s.reset()
	poolFor[T]().Put(s)
	return v, err
}

func (s *ValueTaskSource[T]) completedFor(version uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version != version || s.done
}

// ValueTask is a value-typed handle. A handle built by ValueTaskOf or
// ValueTaskFailed needs no source.
type ValueTask[T any] struct {
	src     *ValueTaskSource[T]
	version uint32
	value   T
	err     error
}

// ValueTaskOf returns a completed value task.
func ValueTaskOf[T any](v T) ValueTask[T] { return ValueTask[T]{value: v} }

// ValueTaskFailed returns a faulted value task.
func ValueTaskFailed[T any](err error) ValueTask[T] { return ValueTask[T]{err: err} }

func (t ValueTask[T]) IsCompleted() bool {
	return t.src == nil || t.src.completedFor(t.version)
}

// Result consumes the outcome. A pooled handle can be read only once.
func (t ValueTask[T]) Result() (T, error) {
	if t.src == nil {
		return t.value, t.err
	}
	return t.src.consume(t.version)
}

func (t ValueTask[T]) GetAwaiter() ValueTaskAwaiter[T] { return ValueTaskAwaiter[T]{t: t} }

// ValueTaskAwaiter awaits a ValueTask.
type ValueTaskAwaiter[T any] struct {
	t ValueTask[T]
}

func (a ValueTaskAwaiter[T]) IsCompleted() bool { return a.t.IsCompleted() }

func (a ValueTaskAwaiter[T]) OnCompleted(fn func()) {
	if a.t.src == nil {
		fn()
		return
	}
	a.t.src.onCompleted(fn, false)
}

func (a ValueTaskAwaiter[T]) GetResult() (T, error) { return a.t.Result() }

// ValueFuture is the valueless form of ValueTask.
type ValueFuture struct {
	t ValueTask[struct{}]
}

// RentValueFuture takes a pending source for a ValueFuture.
func RentValueFuture() *ValueTaskSource[struct{}] { return RentValueTask[struct{}]() }

// AsValueFuture wraps a unit value task.
func AsValueFuture(t ValueTask[struct{}]) ValueFuture { return ValueFuture{t: t} }

// CompleteValueFuture completes a unit source.
func CompleteValueFuture(s *ValueTaskSource[struct{}]) bool { return s.SetResult(struct{}{}) }

// CompletedValueFuture returns a completed ValueFuture.
func CompletedValueFuture() ValueFuture { return ValueFuture{} }

// FailedValueFuture returns a faulted ValueFuture.
func FailedValueFuture(err error) ValueFuture {
	return ValueFuture{t: ValueTaskFailed[struct{}](err)}
}

func (f ValueFuture) IsCompleted() bool { return f.t.IsCompleted() }

// Err consumes the outcome.
func (f ValueFuture) Err() error {
	_, err := f.t.Result()
	return err
}

func (f ValueFuture) GetAwaiter() ValueFutureAwaiter { return ValueFutureAwaiter{f: f} }

// ValueFutureAwaiter awaits a ValueFuture.
type ValueFutureAwaiter struct {
	f ValueFuture
}

func (a ValueFutureAwaiter) IsCompleted() bool     { return a.f.IsCompleted() }
func (a ValueFutureAwaiter) OnCompleted(fn func()) { ValueTaskAwaiter[struct{}]{t: a.f.t}.OnCompleted(fn) }
func (a ValueFutureAwaiter) GetResult() error      { return a.f.Err() }
