package broadcast

import (
	"time"

	"driver-agent/internal/domain"
)

// Countdown derives remaining visibility seconds for one broadcast and
// signals expiry exactly once. It is driven by an external 1 Hz tick; it owns
// no timer of its own, so dropping the presenter stops its ticks.
type Countdown struct {
	endTime time.Time
	fired   bool
}

// NewCountdown creates a presenter for the broadcast. A missing end time
// falls back to the broadcast duration counted from first observation, so a
// malformed payload still renders a sane countdown instead of failing.
func NewCountdown(b domain.Broadcast, now time.Time) *Countdown {
	end := b.EndTime
	if end.IsZero() {
		d := b.Duration
		if d <= 0 {
			d = domain.DefaultDuration
		}
		end = now.Add(time.Duration(d) * time.Second)
	}
	return &Countdown{endTime: end}
}

// Remaining returns whole seconds left, never negative.
func (c *Countdown) Remaining(now time.Time) int {
	d := c.endTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// Tick recomputes the remaining seconds and reports expiry. The expired
// signal is emitted on exactly one tick; subsequent ticks return false.
func (c *Countdown) Tick(now time.Time) (remaining int, expired bool) {
	remaining = c.Remaining(now)
	if remaining > 0 || c.fired {
		return remaining, false
	}
	c.fired = true
	return 0, true
}

// Expired reports whether the expiry signal has already fired.
func (c *Countdown) Expired() bool {
	return c.fired
}
