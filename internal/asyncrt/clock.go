package asyncrt

// Clock supplies time to timers.
type Clock interface {
	NowMs() uint64
	SleepUntilMs(deadlineMs uint64)
}

// VirtualClock advances loop time without blocking.
type VirtualClock struct {
	nowMs uint64
}

func (c *VirtualClock) NowMs() uint64 {
	if c == nil {
		return 0
	}
	return c.nowMs
}

func (c *VirtualClock) SleepUntilMs(deadlineMs uint64) {
	if c == nil || deadlineMs < c.nowMs {
		return
	}
	c.nowMs = deadlineMs
}
