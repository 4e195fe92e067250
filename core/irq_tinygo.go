//go:build tinygo

package core

import "runtime/interrupt"

// irqState is the saved hardware interrupt state.
type irqState = interrupt.State

// irqGuard masks interrupts around shared-state access. On hardware the
// timer ISR is the only other writer, so disabling interrupts is a full
// critical section; nesting is safe because restore puts back the saved
// state rather than unconditionally re-enabling.
type irqGuard struct{}

func (g *irqGuard) save() irqState {
	return interrupt.Disable()
}

func (g *irqGuard) restore(state irqState) {
	interrupt.Restore(state)
}
