//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// The RP2040 exposes a free-running 64-bit counter at 1MHz. The scheduler's
// tick is derived from it by the catch-up loop in main rather than an alarm
// interrupt, so a late pass dispatches the ticks it owes instead of losing
// them.
const clockHz = 1000000

// hardwareTime reads the low 32 bits of the microsecond counter.
func hardwareTime() uint32 {
	return timerRAWL.Get()
}

// hardwareUptime reads the full 64-bit counter.
// Must read high, then low, then high again to detect rollover.
func hardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		// If high didn't change, we got a consistent reading
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
		// Otherwise retry (rollover happened during read)
	}
}
