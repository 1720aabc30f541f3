package session

import (
	"context"
	"time"
)

// FrameClock turns wall time into a whole number of fixed simulation steps.
// When the process falls behind it runs at most maxCatchUp steps in one
// wake-up and drops the rest of the backlog.
type FrameClock struct {
	interval   time.Duration
	maxCatchUp int
	acc        time.Duration
	dropped    uint64
}

// NewFrameClock creates a clock ticking rate times per second.
func NewFrameClock(rate, maxCatchUp int) *FrameClock {
	if rate <= 0 {
		rate = 60
	}
	if maxCatchUp < 1 {
		maxCatchUp = 1
	}
	return &FrameClock{
		interval:   time.Second / time.Duration(rate),
		maxCatchUp: maxCatchUp,
	}
}

// Interval returns the duration of one step.
func (c *FrameClock) Interval() time.Duration { return c.interval }

// Dropped returns how many steps were discarded to bound catch-up.
func (c *FrameClock) Dropped() uint64 { return c.dropped }

// Advance adds elapsed wall time and returns the number of steps to run.
func (c *FrameClock) Advance(elapsed time.Duration) int {
	if elapsed > 0 {
		c.acc += elapsed
	}
	steps := int(c.acc / c.interval)
	if steps > c.maxCatchUp {
		c.dropped += uint64(steps - c.maxCatchUp)
		c.acc = 0
		return c.maxCatchUp
	}
	c.acc -= time.Duration(steps) * c.interval
	return steps
}

// Run wakes on a ticker and calls step for every due frame until ctx is
// cancelled or step returns false.
func (c *FrameClock) Run(ctx context.Context, step func() bool) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := c.Advance(now.Sub(last))
			last = now
			for i := 0; i < n; i++ {
				if !step() {
					return
				}
			}
		}
	}
}
