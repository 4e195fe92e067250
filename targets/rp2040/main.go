//go:build rp2040

// Lab firmware: the classic three-task scheduler exercise on an RP2040
// board. A 1ms tick derived from the hardware microsecond counter drives a
// heartbeat LED, a periodic status frame over USB serial, and a stepper
// sweep. The host-side tickmon tool decodes the frames.
package main

import (
	"machine"

	"tickmux/core"
	"tickmux/protocol"
)

const (
	tickPeriodMS = 1

	stepPin = machine.GPIO2
	dirPin  = machine.GPIO3

	sweepSpan = 40 // bursts per sweep direction
)

var (
	sched *core.Scheduler
	motor *SweepStepper

	// Cumulative per-task firing counts, indexed by handle. Written only
	// from task bodies, which all run on the foreground loop.
	fired [core.MaxTasks]uint32

	hHeartbeat core.TaskHandle
	hReport    core.TaskHandle
	hSweep     core.TaskHandle

	reportBuf []byte

	sweepPos int
	sweepFwd = true
)

func main() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	core.SetDebugWriter(writeLine)
	core.SetDebugEnabled(true)

	var err error
	sched, err = core.New(core.Config{
		TickPeriodMS: tickPeriodMS,
		ClockHz:      clockHz,
		TimerBits:    32,
	})
	check(err, "scheduler init")

	// A failed registration here is an integration bug, not a runtime
	// condition: halt loudly at startup.
	hHeartbeat, err = sched.RegisterMS(500, func() { taskHeartbeat(led) })
	check(err, "register heartbeat")
	hReport, err = sched.RegisterMS(1000, taskReport)
	check(err, "register report")
	hSweep, err = sched.RegisterMS(25, taskSweep)
	check(err, "register sweep")

	motor = NewSweepStepper(0, 0)
	check(motor.Init(stepPin, dirPin), "stepper init")

	writeLine("=== tickmux scheduler lab ===")
	writeLine("heartbeat 500ms | report 1000ms | sweep 25ms")
	writeLine("send 's' to stop, 'g' to resume")

	sched.Start()
	counts := sched.HardwareConfig().CountsPer // timer counts per tick
	lastTick := hardwareTime()

	for {
		// Catch-up dispatch: the hardware counter is the time base, so a
		// slow foreground pass owes ticks and pays them here instead of
		// losing them. Drift stays bounded, never cumulative.
		now := hardwareTime()
		for now-lastTick >= counts {
			sched.HandleTick()
			lastTick += counts
		}

		sched.RunReady()
		pollConsole(&lastTick)
	}
}

func taskHeartbeat(led machine.Pin) {
	fired[hHeartbeat]++
	led.Set(!led.Get())
}

func taskReport() {
	fired[hReport]++

	r := protocol.Report{
		UptimeMS: sched.NowMilliseconds(),
		Ticks:    sched.Ticks(),
		Fired:    fired[:sched.TaskCount()],
	}
	reportBuf = protocol.AppendFrame(reportBuf[:0], &r)
	writeBytes(reportBuf)
}

func taskSweep() {
	fired[hSweep]++

	// 8 pulses per burst; reverse at the ends of the span.
	motor.QueueBurst(8, 10)
	if sweepFwd {
		sweepPos++
		if sweepPos >= sweepSpan {
			sweepFwd = false
			motor.SetDirection(false)
		}
	} else {
		sweepPos--
		if sweepPos <= 0 {
			sweepFwd = true
			motor.SetDirection(true)
		}
	}
}

// pollConsole handles the lab's single-key menu: stop and resume the whole
// scheduler. Stopping freezes every task deterministically; the stepper is
// halted too so no queued bursts keep running.
func pollConsole(lastTick *uint32) {
	if machine.Serial.Buffered() == 0 {
		return
	}
	b, err := machine.Serial.ReadByte()
	if err != nil {
		return
	}

	switch b {
	case 's':
		sched.Stop()
		motor.Halt()
		writeLine("scheduler stopped")
	case 'g':
		// Rebase the tick origin so the stopped interval is not
		// replayed as a burst of owed ticks.
		*lastTick = hardwareTime()
		sched.Start()
		writeLine("scheduler running")
	}
}

func writeBytes(buf []byte) {
	for _, b := range buf {
		machine.Serial.WriteByte(b)
	}
}

func writeLine(s string) {
	for i := 0; i < len(s); i++ {
		machine.Serial.WriteByte(s[i])
	}
	machine.Serial.WriteByte('\r')
	machine.Serial.WriteByte('\n')
}

func check(err error, what string) {
	if err != nil {
		for {
			writeLine("startup failure: " + what + ": " + err.Error())
			busyDelay()
		}
	}
}

func busyDelay() {
	// 64-bit read so this survives the 32-bit counter wrapping.
	start := hardwareUptime()
	for hardwareUptime()-start < 1000000 {
	}
}
