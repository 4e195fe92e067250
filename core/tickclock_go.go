//go:build !tinygo

package core

import "time"

// SimClock drives a Scheduler from a goroutine on hosted builds, standing
// in for the hardware timer interrupt. Each ticker firing invokes
// HandleTick with the same atomicity contract the real ISR has.
type SimClock struct {
	sched  *Scheduler
	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewSimClock creates a clock for the scheduler. The clock is not running
// until Start is called.
func NewSimClock(s *Scheduler) *SimClock {
	return &SimClock{
		sched:  s,
		notify: make(chan struct{}, 1),
	}
}

// Start begins delivering ticks at the scheduler's tick period and marks
// the scheduler running. Calling Start on a running clock is a no-op.
func (c *SimClock) Start() {
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.sched.Start()

	interval := time.Duration(c.sched.TickPeriodMS()) * time.Millisecond
	go c.run(interval)
}

func (c *SimClock) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			c.sched.HandleTick()
			// Best-effort wakeup; a full channel means the consumer
			// is already due to poll.
			select {
			case c.notify <- struct{}{}:
			default:
			}
		case <-c.stop:
			return
		}
	}
}

// Stop halts tick delivery and waits for the clock goroutine to exit, then
// stops the scheduler. After Stop returns no task fires until the clock is
// started again.
func (c *SimClock) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
	c.sched.Stop()
}

// TickC returns a channel that receives a best-effort notification per
// tick. It is a convenience for test harnesses and hosted demos that would
// otherwise spin; PollAndClear remains the core, non-blocking contract and
// no tick accounting depends on this channel being drained.
func (c *SimClock) TickC() <-chan struct{} {
	return c.notify
}
