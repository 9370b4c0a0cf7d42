package cpu

import (
	"bytes"
	"encoding/gob"

	"dmgemu/internal/bus"
)

// CPU implements the SM83 core: registers, flags, the full unprefixed and
// CB-prefixed opcode set, interrupt dispatch, and the HALT/STOP states.
// Instruction dispatch is table-driven: opTable and cbTable hold one
// descriptor per opcode (see instructions.go / instructions_cb.go).
type CPU struct {
	// 8-bit registers
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME    bool
	halted bool
	// EI enables IME after the following instruction
	eiPending bool
	// HALT executed with IME=0 and a pending interrupt: the next opcode
	// fetch does not advance PC, so that byte runs twice.
	haltBug bool
	// STOP freezes the core until any button is pressed.
	stopped bool

	// extra cycles accumulated by the current instruction (taken
	// branches, CB dispatch); reset at the top of every Step
	extra int

	bus *bus.Bus
}

// New creates a CPU with default post-boot-like state (simplified).
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b, SP: 0xFFFE, PC: 0x0000}
}

// SetPC allows tests or a boot stub to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus for tests/tools.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// ResetNoBoot sets registers to typical DMG post-boot state.
// Useful when running without a boot ROM.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.IME = false
	c.halted = false
	c.eiPending = false
	c.haltBug = false
	c.stopped = false
}

// Flags helpers
const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

func (c *CPU) setZNHC(z, n, h, carry bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if carry {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) read8(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.bus.Write(addr, v) }

func (c *CPU) fetch8() byte {
	b := c.read8(c.PC)
	if c.haltBug {
		// PC fails to advance once; the same byte is fetched again.
		c.haltBug = false
		return b
	}
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | (hi << 8)
}

func (c *CPU) read16(addr uint16) uint16 {
	lo := uint16(c.read8(addr))
	hi := uint16(c.read8(addr + 1))
	return lo | (hi << 8)
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, byte(v&0x00FF))
	c.write8(addr+1, byte(v>>8))
}

func (c *CPU) getAF() uint16  { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) setBC(v uint16) { c.B = byte(v >> 8); c.C = byte(v) }
func (c *CPU) getDE() uint16  { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) setDE(v uint16) { c.D = byte(v >> 8); c.E = byte(v) }
func (c *CPU) getHL() uint16  { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) setHL(v uint16) { c.H = byte(v >> 8); c.L = byte(v) }

// getReg/setReg map the 3-bit register index used throughout the opcode
// encoding; index 6 is the (HL) memory operand.
func (c *CPU) getReg(i byte) byte {
	switch i & 7 {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) setReg(i byte, v byte) {
	switch i & 7 {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.getHL(), v)
	default:
		c.A = v
	}
}

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

// cond evaluates the 2-bit condition code: NZ, Z, NC, C.
func (c *CPU) cond(cc byte) bool {
	switch cc & 3 {
	case 0:
		return c.F&flagZ == 0
	case 1:
		return c.F&flagZ != 0
	case 2:
		return c.F&flagC == 0
	default:
		return c.F&flagC != 0
	}
}

// serviceInterrupt dispatches the highest-priority pending interrupt:
// VBlank(0), LCD STAT(1), Timer(2), Serial(3), Joypad(4). Servicing
// clears the IF bit, pushes PC and jumps to the vector; 20 cycles.
func (c *CPU) serviceInterrupt() int {
	ie := c.bus.Read(0xFFFF)
	ifReg := c.bus.Read(0xFF0F) & 0x1F
	pending := ie & ifReg
	if pending == 0 {
		return 0
	}
	var bit uint
	for bit = 0; bit < 5; bit++ {
		if (pending & (1 << bit)) != 0 {
			break
		}
	}
	c.bus.Write(0xFF0F, (ifReg&^(1<<bit))&0x1F)
	c.halted = false
	c.IME = false
	c.push16(c.PC)
	c.PC = 0x40 + uint16(bit)*8
	return 20
}

// Step executes one instruction (or services an interrupt / idles in a
// low-power state) and returns the cycle count consumed.
func (c *CPU) Step() (cycles int) {
	// EI enables IME only after the instruction FOLLOWING it has run:
	// snapshot the pending flag so the enable lands at the end of the
	// next Step, not at the end of EI's own.
	eiWasPending := c.eiPending

	// Advance timers on return with the cycles consumed in this step
	defer func() {
		if c.bus != nil && cycles > 0 {
			c.bus.Tick(cycles)
		}
		if eiWasPending && c.eiPending {
			c.IME = true
			c.eiPending = false
		}
	}()

	// STOP freezes the core until any button is pressed.
	if c.stopped {
		if c.bus.JoypadPressed() {
			c.stopped = false
		} else {
			return 4
		}
	}

	// HALT behavior: if IME and an interrupt is pending, service it; else sleep
	if c.halted {
		if c.IME {
			if cyc := c.serviceInterrupt(); cyc != 0 {
				return cyc
			}
			return 4
		}
		// wake on pending interrupt without servicing
		ifReg := c.bus.Read(0xFF0F) & 0x1F
		ie := c.bus.Read(0xFFFF)
		if (ifReg & ie) != 0 {
			c.halted = false
		} else {
			return 4
		}
	}

	// If IME and an interrupt is pending, service before executing opcode
	if c.IME {
		if cyc := c.serviceInterrupt(); cyc != 0 {
			return cyc
		}
	}

	op := c.fetch8()
	ins := &opTable[op]
	c.extra = 0
	ins.fn(c)
	return ins.cycles + c.extra
}

// OpcodeName returns the mnemonic for an unprefixed opcode (trace output).
func OpcodeName(op byte) string { return opTable[op].name }

// --- Save/Load state ---
type cpuState struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME                    bool
	Halted                 bool
	EIPending              bool
	HaltBug                bool
	Stopped                bool
}

func (c *CPU) SaveState() []byte {
	var buf bytes.Buffer
	s := cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted, EIPending: c.eiPending,
		HaltBug: c.haltBug, Stopped: c.stopped,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.halted, c.eiPending = s.IME, s.Halted, s.EIPending
	c.haltBug, c.stopped = s.HaltBug, s.Stopped
}
