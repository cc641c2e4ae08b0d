package asyncrt

import (
	"context"
	"sync"
)

// completion is the state shared by every cell kind: a one-shot outcome and
// the continuations waiting for it. Cells may be completed from any
// goroutine; continuations run on the completing goroutine unless the cell
// is bound to a scheduler.
type completion struct {
	mu      sync.Mutex
	done    bool
	err     error
	wakers  []func()
	doneCh  chan struct{}
	sched   Scheduler
	version uint32
}

// finish records the outcome once and returns the continuations to run.
func (c *completion) finish(err error, store func()) ([]func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil, false
	}
	if store != nil {
		store()
	}
	c.done = true
	c.err = err
	wakers := c.wakers
	c.wakers = nil
	if c.doneCh != nil {
		close(c.doneCh)
	}
	return wakers, true
}

func (c *completion) wake(wakers []func()) {
	for _, fn := range wakers {
		fn()
	}
}

func (c *completion) dispatch(fn func()) {
	if c.sched != nil {
		c.sched.Post(fn)
		return
	}
	fn()
}

func (c *completion) isCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// onCompleted registers fn, running it right away when already completed.
func (c *completion) onCompleted(fn func(), inline bool) {
	c.mu.Lock()
	if !c.done {
		if inline {
			c.wakers = append(c.wakers, fn)
		} else {
			c.wakers = append(c.wakers, func() { c.dispatch(fn) })
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if inline {
		fn()
		return
	}
	c.dispatch(fn)
}

func (c *completion) wait(ctx context.Context) error {
	c.mu.Lock()
	if c.done {
		err := c.err
		c.mu.Unlock()
		return err
	}
	if c.doneCh == nil {
		c.doneCh = make(chan struct{})
	}
	ch := c.doneCh
	c.mu.Unlock()
	select {
	case <-ch:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reset prepares a pooled cell for reuse and invalidates old handles.
func (c *completion) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = false
	c.err = nil
	c.wakers = nil
	c.doneCh = nil
	c.version++
}
