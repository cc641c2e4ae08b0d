// Package asyncrt provides the runtime objects lowered state machines talk
// to: completion cells with awaiters, pooled value tasks, the sequence
// adapter for iterator bodies and a small deterministic event loop.
package asyncrt

import (
	"container/heap"
	"math/rand"
)

// Config configures loop scheduling behavior.
type Config struct {
	Deterministic bool
	Fuzz          bool
	Seed          uint64
}

// Scheduler accepts continuations to run later.
type Scheduler interface {
	Post(fn func())
}

// Loop runs posted callbacks on the calling goroutine. Order is FIFO unless
// fuzzing is enabled, in which case a seeded RNG picks the next callback so
// interleavings stay reproducible. Time is virtual: when nothing is ready the
// clock jumps to the next timer deadline.
//
// A Loop is not safe for concurrent use.
type Loop struct {
	cfg         Config
	ready       []func()
	rng         *rand.Rand
	clock       VirtualClock
	timers      timerHeap
	nextTimerID TimerID
	steps       int
}

// NewLoop constructs a loop with the provided configuration.
func NewLoop(cfg Config) *Loop {
	l := &Loop{cfg: cfg, nextTimerID: 1}
	if cfg.Fuzz {
		seed := cfg.Seed
		if seed == 0 {
			seed = 1
		}
		l.rng = rand.New(rand.NewSource(int64(seed))) //nolint:gosec // deterministic scheduler seed
	}
	return l
}

// Post enqueues fn.
func (l *Loop) Post(fn func()) {
	if l == nil || fn == nil {
		return
	}
	l.ready = append(l.ready, fn)
}

// Pending reports queued callbacks and armed timers.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return len(l.ready) + l.timers.Len()
}

// Steps returns the number of callbacks run so far.
func (l *Loop) Steps() int {
	if l == nil {
		return 0
	}
	return l.steps
}

// Clock exposes the loop's virtual clock.
func (l *Loop) Clock() Clock { return &l.clock }

// Run drains the loop, advancing virtual time whenever only timers remain.
func (l *Loop) Run() {
	for l.RunOnce() {
	}
}

// RunUntil runs until done reports true or no work remains.
func (l *Loop) RunUntil(done func() bool) bool {
	for !done() {
		if !l.RunOnce() {
			return done()
		}
	}
	return true
}

// RunOnce runs a single callback, firing due timers first. It reports
// whether any progress was made.
func (l *Loop) RunOnce() bool {
	if l == nil {
		return false
	}
	if len(l.ready) == 0 && !l.advanceTimeToNextTimer() {
		return false
	}
	fn, ok := l.nextReady()
	if !ok {
		return false
	}
	l.steps++
	fn()
	return true
}

func (l *Loop) nextReady() (func(), bool) {
	if len(l.ready) == 0 {
		return nil, false
	}
	idx := 0
	if l.cfg.Fuzz && l.rng != nil {
		idx = l.rng.Intn(len(l.ready))
	}
	fn := l.ready[idx]
	copy(l.ready[idx:], l.ready[idx+1:])
	l.ready[len(l.ready)-1] = nil
	l.ready = l.ready[:len(l.ready)-1]
	return fn, true
}

// Yield returns a future that completes on a later turn of the loop.
func (l *Loop) Yield() *Future {
	f := NewFuture()
	f.sched = l
	l.Post(func() { f.Complete() })
	return f
}

// Delay returns a future that completes once ms of virtual time passed.
func (l *Loop) Delay(ms uint64) *Future {
	f := NewFuture()
	f.sched = l
	l.schedule(ms, func() { f.Complete() })
	return f
}

// After completes a task with v once ms of virtual time passed.
func After[T any](l *Loop, ms uint64, v T) *Task[T] {
	t := NewTask[T]()
	t.sched = l
	l.schedule(ms, func() { t.Complete(v) })
	return t
}

// FailAfter faults a task with err once ms of virtual time passed.
func FailAfter[T any](l *Loop, ms uint64, err error) *Task[T] {
	t := NewTask[T]()
	t.sched = l
	l.schedule(ms, func() { t.Fail(err) })
	return t
}

func (l *Loop) schedule(ms uint64, fire func()) TimerID {
	id := l.nextTimerID
	l.nextTimerID++
	heap.Push(&l.timers, &Timer{id: id, deadlineMs: l.clock.NowMs() + ms, fire: fire})
	return id
}
