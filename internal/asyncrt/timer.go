package asyncrt

import "container/heap"

// TimerID identifies a scheduled timer.
type TimerID uint64

// Timer represents a single scheduled wakeup.
type Timer struct {
	id         TimerID
	deadlineMs uint64
	fire       func()
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadlineMs == h[j].deadlineMs {
		return h[i].id < h[j].id
	}
	return h[i].deadlineMs < h[j].deadlineMs
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	timer, ok := x.(*Timer)
	if !ok || timer == nil {
		return
	}
	*h = append(*h, timer)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return (*Timer)(nil)
	}
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// advanceTimeToNextTimer moves the clock to the earliest deadline and posts
// every timer due at that instant.
func (l *Loop) advanceTimeToNextTimer() bool {
	if l.timers.Len() == 0 {
		return false
	}
	first, ok := heap.Pop(&l.timers).(*Timer)
	if !ok || first == nil {
		return false
	}
	l.clock.SleepUntilMs(first.deadlineMs)
	l.Post(first.fire)
	for l.timers.Len() > 0 && l.timers[0].deadlineMs <= l.clock.NowMs() {
		next, _ := heap.Pop(&l.timers).(*Timer)
		if next != nil {
			l.Post(next.fire)
		}
	}
	return true
}
