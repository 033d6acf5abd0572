package session

import (
	"sync"
	"time"
)

// Countdown is a cancellable once-per-second countdown, used for the
// pre-round timer. Cancel is safe to call at any time, including after the
// countdown finished.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	cancel    chan struct{}
	done      bool
}

// StartCountdown counts down from seconds, calling tick with the remaining
// count after every interval and finished when it reaches zero. Both
// callbacks may be nil. interval exists for tests; callers pass time.Second.
func StartCountdown(seconds int, interval time.Duration, tick func(remaining int), finished func()) *Countdown {
	c := &Countdown{
		remaining: seconds,
		cancel:    make(chan struct{}),
	}
	go c.run(interval, tick, finished)
	return c
}

func (c *Countdown) run(interval time.Duration, tick func(int), finished func()) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-c.cancel:
			return
		case <-t.C:
			c.mu.Lock()
			c.remaining--
			rem := c.remaining
			if rem <= 0 {
				c.done = true
			}
			c.mu.Unlock()

			if tick != nil {
				tick(rem)
			}
			if rem <= 0 {
				if finished != nil {
					finished()
				}
				return
			}
		}
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Cancel stops the countdown. The finished callback will not fire.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		close(c.cancel)
	}
}
