// internal/game/clock.go
package game

import (
	"sync"
	"time"
)

// RoundClock is a single-shot, cancelable deferred trigger scoped to one room.
// Every Schedule or Cancel advances a monotonically increasing generation
// counter; a callback captures the generation it was scheduled under and must
// re-validate it (under the session lock) before applying any effect. This is
// what makes an early submission, a drawer disconnect, or room teardown
// deterministically suppress a stale timer.
type RoundClock struct {
	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	deadline time.Time
}

func NewRoundClock() *RoundClock {
	return &RoundClock{}
}

// Schedule arms the clock to invoke fn after d, replacing any pending trigger.
// fn receives the generation it was scheduled under.
func (c *RoundClock) Schedule(d time.Duration, fn func(gen uint64)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.deadline = time.Now().Add(d)
	c.timer = time.AfterFunc(d, func() {
		// The callee re-checks the generation under its own lock.
		if !c.Valid(gen) {
			return
		}
		fn(gen)
	})
	return gen
}

// Cancel stops any pending trigger and invalidates every outstanding
// generation, including in-flight callbacks that have not yet re-validated.
func (c *RoundClock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.deadline = time.Time{}
}

// Generation returns the current generation. Capture it before releasing a
// lock for a blocking call, then Valid() afterwards.
func (c *RoundClock) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Valid reports whether gen is still the current generation.
func (c *RoundClock) Valid(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// Remaining returns the time left until the pending trigger fires, or zero if
// nothing is scheduled. This is what reconnection snapshots derive their
// timeRemaining from, so rejoining never grants a fresh full duration.
func (c *RoundClock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deadline.IsZero() {
		return 0
	}
	rem := time.Until(c.deadline)
	if rem < 0 {
		return 0
	}
	return rem
}
