// Package core implements a cooperative tick/task scheduler: one periodic
// tick source (a hardware timer overflow interrupt, or a simulated clock on
// hosted builds) multiplexed across a fixed table of independent periodic
// tasks. The tick handler sets per-task ready flags; a foreground loop polls
// and clears them. There is no preemption between task bodies and no dynamic
// allocation after registration.
package core

import "errors"

// TaskFunc is an optional task body run by the foreground loop when the
// task's ready flag is found set. It runs in foreground context, never in
// the tick handler.
type TaskFunc func()

// TaskHandle identifies a registered task slot.
type TaskHandle uint8

// MaxTasks is the size of the fixed task table. Registration fails closed
// once all slots are used; the table never grows.
const MaxTasks = 8

var (
	ErrTableFull   = errors.New("task table full")
	ErrBadInterval = errors.New("task interval must be at least one tick")
	ErrBadHandle   = errors.New("invalid task handle")
)

// task is one slot in the scheduler's table. All fields except the ready
// flag are owned by the tick handler once the scheduler is running; the
// foreground loop only ever clears ready.
type task struct {
	intervalTicks uint32
	elapsedTicks  uint32
	ready         bool
	action        TaskFunc
}

// Scheduler owns the tick counter and the task table. One instance
// corresponds to one hardware timer; all shared state lives here rather
// than in package globals so a hosted test can run several side by side.
type Scheduler struct {
	irq irqGuard

	hw           TimerConfig
	tickPeriodMS uint32

	running bool
	ticks   uint32 // wraps modulo 2^32; written only by HandleTick
	millis  uint64

	tasks    [MaxTasks]task
	numTasks uint8
}

// Config selects the tick period and the timer hardware profile used to
// validate it. Zero values pick the classic lab setup: 16MHz timer clock,
// 8-bit counter.
type Config struct {
	TickPeriodMS uint32
	ClockHz      uint32 // timer input clock; 0 = DefaultClockHz
	TimerBits    uint8  // counter width in bits; 0 = 8
}

// New creates a stopped scheduler. The tick period is checked against the
// available prescalers at init time; an unreachable period is a
// configuration error here, never a mid-run failure.
func New(cfg Config) (*Scheduler, error) {
	clockHz := cfg.ClockHz
	if clockHz == 0 {
		clockHz = DefaultClockHz
	}
	bits := cfg.TimerBits
	if bits == 0 {
		bits = 8
	}

	hw, err := TimerConfigFor(clockHz, cfg.TickPeriodMS, bits)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		hw:           hw,
		tickPeriodMS: cfg.TickPeriodMS,
	}, nil
}

// NewScheduler creates a stopped scheduler with the default timer profile.
func NewScheduler(tickPeriodMS uint32) (*Scheduler, error) {
	return New(Config{TickPeriodMS: tickPeriodMS})
}

// HardwareConfig returns the prescaler/reload selection computed at init.
// Target code programs the timer registers from this.
func (s *Scheduler) HardwareConfig() TimerConfig {
	return s.hw
}

// TickPeriodMS returns the configured tick period in milliseconds.
func (s *Scheduler) TickPeriodMS() uint32 {
	return s.tickPeriodMS
}

// Register adds a task firing every intervalTicks ticks. The action may be
// nil for callers that poll flags directly. Safe while the scheduler is
// running: the table update happens under the interrupt guard.
func (s *Scheduler) Register(intervalTicks uint32, action TaskFunc) (TaskHandle, error) {
	if intervalTicks == 0 {
		return 0, ErrBadInterval
	}

	state := s.irq.save()
	if s.numTasks >= MaxTasks {
		s.irq.restore(state)
		return 0, ErrTableFull
	}

	h := TaskHandle(s.numTasks)
	s.tasks[h] = task{intervalTicks: intervalTicks, action: action}
	s.numTasks++
	s.irq.restore(state)

	debugTask(h, intervalTicks)
	return h, nil
}

// RegisterMS is Register with the interval given in milliseconds. Intervals
// shorter than one tick are rejected; others round down to whole ticks.
func (s *Scheduler) RegisterMS(intervalMS uint32, action TaskFunc) (TaskHandle, error) {
	if intervalMS < s.tickPeriodMS {
		return 0, ErrBadInterval
	}
	return s.Register(intervalMS/s.tickPeriodMS, action)
}

// HandleTick is the tick interrupt body. On hardware it is called from the
// timer overflow ISR after the counter reload; on hosted builds a SimClock
// goroutine or a test calls it directly. It must not block or allocate, and
// it has no failure path: if a task fires while its flag is still set the
// firing is dropped (the flag stays set, nothing is counted). That loss is
// the documented behavior for a slow consumer, not an error.
func (s *Scheduler) HandleTick() {
	state := s.irq.save()
	defer s.irq.restore(state)

	if !s.running {
		return
	}

	s.ticks++
	s.millis += uint64(s.tickPeriodMS)

	for i := uint8(0); i < s.numTasks; i++ {
		t := &s.tasks[i]
		t.elapsedTicks++
		if t.elapsedTicks >= t.intervalTicks {
			t.ready = true
			t.elapsedTicks = 0
		}
	}
}

// PollAndClear atomically tests and clears a task's ready flag. Calling it
// twice without an intervening tick returns true then false. An unknown
// handle reads as never-ready.
func (s *Scheduler) PollAndClear(h TaskHandle) bool {
	state := s.irq.save()
	defer s.irq.restore(state)

	if h >= TaskHandle(s.numTasks) {
		return false
	}

	fired := s.tasks[h].ready
	s.tasks[h].ready = false
	return fired
}

// RunReady performs one foreground pass: every task is polled in
// registration order and ready actions run to completion. Actions execute
// outside the interrupt guard, so the tick handler keeps running underneath
// them. Returns the number of tasks serviced. Task bodies must stay short
// relative to the fastest interval; the scheduler does not enforce that.
func (s *Scheduler) RunReady() int {
	serviced := 0
	n := s.taskCount()
	for h := TaskHandle(0); h < TaskHandle(n); h++ {
		if !s.PollAndClear(h) {
			continue
		}
		if action := s.taskAction(h); action != nil {
			action()
		}
		serviced++
	}
	return serviced
}

// Ticks returns the tick counter. The read is guarded so a tick landing
// mid-read cannot tear the value.
func (s *Scheduler) Ticks() uint32 {
	state := s.irq.save()
	defer s.irq.restore(state)
	return s.ticks
}

// NowMilliseconds returns elapsed wall time since init (or the last Reset)
// derived from the tick counter and the tick period.
func (s *Scheduler) NowMilliseconds() uint64 {
	state := s.irq.save()
	defer s.irq.restore(state)
	return s.millis
}

// Start enables tick processing. On hardware the caller also sets the
// timer's clock-select bits; see targets/.
func (s *Scheduler) Start() {
	state := s.irq.save()
	defer s.irq.restore(state)
	s.running = true
}

// Stop disables tick processing deterministically: once Stop returns, no
// ready flag transitions from false to true until Start is called again. A
// tick in flight on another goroutine either completed before Stop acquired
// the guard or sees running=false and does nothing.
func (s *Scheduler) Stop() {
	state := s.irq.save()
	defer s.irq.restore(state)
	s.running = false
}

// Running reports whether ticks are currently being processed.
func (s *Scheduler) Running() bool {
	state := s.irq.save()
	defer s.irq.restore(state)
	return s.running
}

// Reset zeroes the tick counter, the millisecond clock and every task's
// elapsed count and ready flag. Registrations are kept. The labs do this
// between exercises so each run starts from t=0 with no stale firings.
func (s *Scheduler) Reset() {
	state := s.irq.save()
	defer s.irq.restore(state)

	s.ticks = 0
	s.millis = 0
	for i := uint8(0); i < s.numTasks; i++ {
		s.tasks[i].elapsedTicks = 0
		s.tasks[i].ready = false
	}
}

// TaskCount returns the number of registered tasks.
func (s *Scheduler) TaskCount() int {
	return int(s.taskCount())
}

// Interval returns a task's configured interval in ticks.
func (s *Scheduler) Interval(h TaskHandle) (uint32, error) {
	state := s.irq.save()
	defer s.irq.restore(state)

	if h >= TaskHandle(s.numTasks) {
		return 0, ErrBadHandle
	}
	return s.tasks[h].intervalTicks, nil
}

func (s *Scheduler) taskCount() uint8 {
	state := s.irq.save()
	defer s.irq.restore(state)
	return s.numTasks
}

func (s *Scheduler) taskAction(h TaskHandle) TaskFunc {
	state := s.irq.save()
	defer s.irq.restore(state)

	if h >= TaskHandle(s.numTasks) {
		return nil
	}
	return s.tasks[h].action
}

// Deadline is a non-blocking delay against a scheduler's clock. Create one
// with After, then poll Expired from the foreground loop. Unlike a
// static-variable delay helper this is a value with no hidden state, so any
// number of delays can be in flight at once.
type Deadline struct {
	s     *Scheduler
	start uint64
	ms    uint64
}

// After returns a Deadline that expires ms milliseconds from now.
func (s *Scheduler) After(ms uint64) Deadline {
	return Deadline{s: s, start: s.NowMilliseconds(), ms: ms}
}

// Expired reports whether the deadline has passed. It never blocks.
func (d Deadline) Expired() bool {
	return d.s.NowMilliseconds()-d.start >= d.ms
}
