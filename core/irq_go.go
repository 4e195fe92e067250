//go:build !tinygo

package core

import "sync"

// irqState is the saved interrupt state. Hosted builds have nothing to
// save; the zero value is returned for symmetry with the tinygo build.
type irqState struct{}

// irqGuard is the hosted stand-in for disabling interrupts. The tick
// "interrupt" on a workstation is a goroutine, so mutual exclusion needs a
// real lock; the contract (no flag read-modify-write races the handler)
// is the same as masking the hardware interrupt line.
type irqGuard struct {
	mu sync.Mutex
}

func (g *irqGuard) save() irqState {
	g.mu.Lock()
	return irqState{}
}

func (g *irqGuard) restore(irqState) {
	g.mu.Unlock()
}
