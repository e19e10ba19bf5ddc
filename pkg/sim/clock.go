package sim

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is a mock clock whose Sleep advances simulated time instead of blocking.
type Clock struct {
	*clock.Mock
	slept []time.Duration
}

// NewClock returns a simulated clock starting at the Unix epoch.
func NewClock() *Clock {
	return &Clock{Mock: clock.NewMock()}
}

// Sleep advances the clock by d.
func (c *Clock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.Add(d)
}

// Slept returns every duration passed to Sleep, in order.
func (c *Clock) Slept() []time.Duration {
	return append([]time.Duration(nil), c.slept...)
}
