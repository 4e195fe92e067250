//go:build rp2040

package main

// PIO-backed step pulse generation for the stepper sweep lab task. The
// scheduler task only queues a burst command into the state machine FIFO;
// the PIO times the individual pulses, so the task body stays far shorter
// than the tick period.

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// buildSweepProgram assembles the pulse-train program.
// Command word format:
//
//	Bits 0-15:  pulse count
//	Bits 16-23: delay cycles between pulses
//	Bit 31:     direction level
func buildSweepProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 3: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 4: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 5: set pins, 0
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, 4
		// .wrap
	}
}

const sweepPIOOrigin = 0 // Load at offset 0 for correct jump addresses

// SweepStepper drives a stepper's step/dir pins from a PIO state machine.
type SweepStepper struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	direction bool
	offset    uint8
}

// NewSweepStepper binds a PIO block and state machine.
// pioNum: 0 for PIO0, 1 for PIO1; smNum: 0-3.
func NewSweepStepper(pioNum, smNum uint8) *SweepStepper {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}

	return &SweepStepper{
		pio: pioHW,
		sm:  pioHW.StateMachine(smNum),
	}
}

// Init loads the program and configures the pins and state machine.
func (s *SweepStepper) Init(stepPin, dirPin machine.Pin) error {
	s.stepPin = stepPin
	s.dirPin = dirPin

	// Claim the state machine before touching its registers.
	s.sm.TryClaim()

	program := buildSweepProgram()
	offset, err := s.pio.AddProgram(program, sweepPIOOrigin)
	if err != nil {
		return err
	}
	s.offset = offset

	s.stepPin.Configure(machine.PinConfig{Mode: s.pio.PinMode()})
	s.dirPin.Configure(machine.PinConfig{Mode: s.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()

	// SET drives the step pin, OUT drives the direction pin.
	cfg.SetSetPins(s.stepPin, 1)
	cfg.SetOutPins(s.dirPin, 1)

	// Shift right, autopull disabled (the program pulls explicitly),
	// 32-bit threshold.
	cfg.SetOutShift(true, false, 32)

	cfg.SetWrap(offset+uint8(len(program))-1, offset)

	// Divided clock; the program's delay field scales on top of this.
	cfg.SetClkDivIntFrac(1000, 0)

	// Init first, then pin directions (the order matters).
	s.sm.Init(offset, cfg)
	s.sm.SetPindirsConsecutive(s.stepPin, 1, true)
	s.sm.SetPindirsConsecutive(s.dirPin, 1, true)

	s.sm.SetPinsConsecutive(s.stepPin, 1, false)
	s.sm.SetPinsConsecutive(s.dirPin, 1, false)

	s.sm.SetEnabled(true)
	return nil
}

// SetDirection sets the direction for subsequent bursts.
func (s *SweepStepper) SetDirection(dir bool) {
	s.direction = dir
}

// QueueBurst queues count pulses with delayCycles spacing. Blocks only if
// the four-deep FIFO is full, which a correctly paced task never hits.
func (s *SweepStepper) QueueBurst(count uint16, delayCycles uint8) {
	cmd := uint32(count) | (uint32(delayCycles) << 16)
	if s.direction {
		cmd |= 1 << 31
	}

	for s.sm.IsTxFIFOFull() {
		// Busy wait - should be very brief
	}
	s.sm.TxPut(cmd)
}

// Halt stops pulse generation and drops anything still queued.
func (s *SweepStepper) Halt() {
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
	s.sm.Restart()
	s.sm.SetEnabled(true)
}
