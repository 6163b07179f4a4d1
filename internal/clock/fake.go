package clock

import "time"

// FakeClock pins Now to a fixed UTC instant. Sync windows and period starts
// are all UTC-derived, so tests pin UTC up front rather than converting at
// every assertion.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, for exercising sync-interval cutoffs.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
