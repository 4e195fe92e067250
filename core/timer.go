package core

import "errors"

// DefaultClockHz is the timer input clock assumed when Config.ClockHz is
// zero. It matches the 16MHz crystal the lab boards run at.
const DefaultClockHz = 16000000

// ErrPeriodUnreachable is returned when no prescaler can stretch the
// requested tick period into the timer's counter range.
var ErrPeriodUnreachable = errors.New("tick period not achievable with available prescalers")

// prescalers is the divider set of an AVR Timer2-class peripheral, smallest
// first. Smaller dividers keep more counts per tick and therefore better
// period resolution, so selection walks this order.
var prescalers = [...]uint32{1, 8, 32, 64, 128, 256, 1024}

// TimerConfig is the register-level timer setup derived once at init:
// which prescaler to select and what value to reload the count register
// with on every overflow. Read-mostly after init; targets must stop the
// timer before applying a new one so the reload cannot race the handler.
type TimerConfig struct {
	Prescaler  uint32 // clock divider
	CountsPer  uint32 // timer counts per tick
	StartValue uint32 // reload value: 2^bits - CountsPer
	Bits       uint8  // counter width
}

// TimerConfigFor picks the smallest prescaler that fits one tick period
// into a bits-wide counter and computes the overflow reload value.
//
// For the classic lab setup (16MHz clock, 1ms tick, 8-bit counter) this
// yields prescaler 64, 250 counts and reload value 6: the timer counts
// 6..255 and overflows every 250/(16MHz/64) = 1ms.
func TimerConfigFor(clockHz, tickPeriodMS uint32, bits uint8) (TimerConfig, error) {
	if tickPeriodMS == 0 || clockHz == 0 || bits == 0 || bits > 32 {
		return TimerConfig{}, ErrPeriodUnreachable
	}

	maxCounts := uint64(1) << bits

	for _, div := range prescalers {
		// Counts per tick at this divider. Round to nearest so 1ms at
		// 16MHz/64 lands on exactly 250, not 249.
		counts := (uint64(clockHz)*uint64(tickPeriodMS) + uint64(div)*500) / (uint64(div) * 1000)
		if counts == 0 {
			// Period shorter than one timer count even undivided.
			return TimerConfig{}, ErrPeriodUnreachable
		}
		if counts > maxCounts {
			continue
		}
		return TimerConfig{
			Prescaler:  div,
			CountsPer:  uint32(counts),
			StartValue: uint32(maxCounts - counts),
			Bits:       bits,
		}, nil
	}

	return TimerConfig{}, ErrPeriodUnreachable
}

// TicksFromMS converts milliseconds to ticks for a given tick period,
// rounding down. Returns 0 when ms is shorter than one tick.
func TicksFromMS(ms, tickPeriodMS uint32) uint32 {
	if tickPeriodMS == 0 {
		return 0
	}
	return ms / tickPeriodMS
}
