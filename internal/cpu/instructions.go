package cpu

import "fmt"

// opcode describes one instruction: mnemonic, base cycle cost and the
// effect closure. Conditional instructions add their taken-branch cost
// through c.extra.
type opcode struct {
	name   string
	cycles int
	fn     func(c *CPU)
}

var opTable [256]opcode

func def(op byte, name string, cycles int, fn func(c *CPU)) {
	if opTable[op].fn != nil {
		panic(fmt.Sprintf("opcode %02X defined twice", op))
	}
	opTable[op] = opcode{name: name, cycles: cycles, fn: fn}
}

// register names by 3-bit operand index
var regNames = [8]string{"B", "C", "D", "E", "H", "L", "(HL)", "A"}

var condNames = [4]string{"NZ", "Z", "NC", "C"}

// --- 8-bit ALU helpers (operate on A, set all flags) ---

func (c *CPU) addA(v byte) {
	r := uint16(c.A) + uint16(v)
	res := byte(r)
	c.setZNHC(res == 0, false, (c.A&0x0F)+(v&0x0F) > 0x0F, r > 0xFF)
	c.A = res
}

func (c *CPU) adcA(v byte) {
	carry := uint16(0)
	if c.F&flagC != 0 {
		carry = 1
	}
	r := uint16(c.A) + uint16(v) + carry
	res := byte(r)
	c.setZNHC(res == 0, false, uint16(c.A&0x0F)+uint16(v&0x0F)+carry > 0x0F, r > 0xFF)
	c.A = res
}

func (c *CPU) subA(v byte) {
	r := int16(c.A) - int16(v)
	res := byte(r)
	c.setZNHC(res == 0, true, c.A&0x0F < v&0x0F, r < 0)
	c.A = res
}

func (c *CPU) sbcA(v byte) {
	carry := int16(0)
	if c.F&flagC != 0 {
		carry = 1
	}
	r := int16(c.A) - int16(v) - carry
	res := byte(r)
	c.setZNHC(res == 0, true, int16(c.A&0x0F)-int16(v&0x0F)-carry < 0, r < 0)
	c.A = res
}

func (c *CPU) andA(v byte) {
	c.A &= v
	c.setZNHC(c.A == 0, false, true, false)
}

func (c *CPU) xorA(v byte) {
	c.A ^= v
	c.setZNHC(c.A == 0, false, false, false)
}

func (c *CPU) orA(v byte) {
	c.A |= v
	c.setZNHC(c.A == 0, false, false, false)
}

func (c *CPU) cpA(v byte) {
	r := int16(c.A) - int16(v)
	c.setZNHC(byte(r) == 0, true, c.A&0x0F < v&0x0F, r < 0)
}

// inc8/dec8 preserve the carry flag.
func (c *CPU) inc8(v byte) byte {
	res := v + 1
	f := c.F & flagC
	if res == 0 {
		f |= flagZ
	}
	if v&0x0F == 0x0F {
		f |= flagH
	}
	c.F = f
	return res
}

func (c *CPU) dec8(v byte) byte {
	res := v - 1
	f := c.F&flagC | flagN
	if res == 0 {
		f |= flagZ
	}
	if v&0x0F == 0 {
		f |= flagH
	}
	c.F = f
	return res
}

// ADD HL,rr: Z preserved, H/C from bit 11/15 carries.
func (c *CPU) addHL(v uint16) {
	hl := c.getHL()
	r := uint32(hl) + uint32(v)
	f := c.F & flagZ
	if (hl&0x0FFF)+(v&0x0FFF) > 0x0FFF {
		f |= flagH
	}
	if r > 0xFFFF {
		f |= flagC
	}
	c.F = f
	c.setHL(uint16(r))
}

// control, rotates on A, flag ops
func init() {
	def(0x00, "NOP", 4, func(c *CPU) {})

	def(0x10, "STOP", 4, func(c *CPU) {
		c.fetch8() // padding byte
		c.stopped = true
	})

	def(0x76, "HALT", 4, func(c *CPU) {
		if !c.IME {
			ifReg := c.read8(0xFF0F) & 0x1F
			ie := c.read8(0xFFFF)
			if ifReg&ie != 0 {
				// HALT with IME=0 and a pending interrupt does not
				// halt; the following byte is fetched twice.
				c.haltBug = true
				return
			}
		}
		c.halted = true
	})

	def(0xF3, "DI", 4, func(c *CPU) {
		c.IME = false
		c.eiPending = false
	})
	def(0xFB, "EI", 4, func(c *CPU) {
		c.eiPending = true
	})

	def(0x07, "RLCA", 4, func(c *CPU) { c.A = c.rlc(c.A); c.F &^= flagZ })
	def(0x0F, "RRCA", 4, func(c *CPU) { c.A = c.rrc(c.A); c.F &^= flagZ })
	def(0x17, "RLA", 4, func(c *CPU) { c.A = c.rl(c.A); c.F &^= flagZ })
	def(0x1F, "RRA", 4, func(c *CPU) { c.A = c.rr(c.A); c.F &^= flagZ })

	def(0x27, "DAA", 4, func(c *CPU) {
		a := c.A
		carry := c.F&flagC != 0
		if c.F&flagN == 0 {
			if carry || a > 0x99 {
				a += 0x60
				carry = true
			}
			if c.F&flagH != 0 || a&0x0F > 0x09 {
				a += 0x06
			}
		} else {
			if carry {
				a -= 0x60
			}
			if c.F&flagH != 0 {
				a -= 0x06
			}
		}
		f := c.F & flagN
		if a == 0 {
			f |= flagZ
		}
		if carry {
			f |= flagC
		}
		c.F = f
		c.A = a
	})

	def(0x2F, "CPL", 4, func(c *CPU) {
		c.A = ^c.A
		c.F |= flagN | flagH
	})
	def(0x37, "SCF", 4, func(c *CPU) {
		c.F = c.F&flagZ | flagC
	})
	def(0x3F, "CCF", 4, func(c *CPU) {
		c.F = (c.F&flagZ | c.F&flagC) ^ flagC
	})

	def(0xCB, "PREFIX CB", 0, func(c *CPU) {
		cb := c.fetch8()
		ins := &cbTable[cb]
		ins.fn(c)
		c.extra += ins.cycles
	})

	for _, op := range []byte{0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD} {
		// unused encodings execute as 4-cycle no-ops
		def(op, fmt.Sprintf("ILLEGAL %02X", op), 4, func(c *CPU) {})
	}
}

// 8-bit loads
func init() {
	// LD r,d8 (0x06 | r<<3); (HL) variant costs 12
	for i := byte(0); i < 8; i++ {
		i := i
		cyc := 8
		if i == 6 {
			cyc = 12
		}
		def(0x06|i<<3, "LD "+regNames[i]+",d8", cyc, func(c *CPU) {
			c.setReg(i, c.fetch8())
		})
	}

	// LD r,r' block 0x40-0x7F; 0x76 is HALT
	for d := byte(0); d < 8; d++ {
		for s := byte(0); s < 8; s++ {
			if d == 6 && s == 6 {
				continue
			}
			d, s := d, s
			cyc := 4
			if d == 6 || s == 6 {
				cyc = 8
			}
			def(0x40|d<<3|s, "LD "+regNames[d]+","+regNames[s], cyc, func(c *CPU) {
				c.setReg(d, c.getReg(s))
			})
		}
	}

	def(0x02, "LD (BC),A", 8, func(c *CPU) { c.write8(c.getBC(), c.A) })
	def(0x12, "LD (DE),A", 8, func(c *CPU) { c.write8(c.getDE(), c.A) })
	def(0x0A, "LD A,(BC)", 8, func(c *CPU) { c.A = c.read8(c.getBC()) })
	def(0x1A, "LD A,(DE)", 8, func(c *CPU) { c.A = c.read8(c.getDE()) })

	def(0x22, "LD (HL+),A", 8, func(c *CPU) {
		hl := c.getHL()
		c.write8(hl, c.A)
		c.setHL(hl + 1)
	})
	def(0x32, "LD (HL-),A", 8, func(c *CPU) {
		hl := c.getHL()
		c.write8(hl, c.A)
		c.setHL(hl - 1)
	})
	def(0x2A, "LD A,(HL+)", 8, func(c *CPU) {
		hl := c.getHL()
		c.A = c.read8(hl)
		c.setHL(hl + 1)
	})
	def(0x3A, "LD A,(HL-)", 8, func(c *CPU) {
		hl := c.getHL()
		c.A = c.read8(hl)
		c.setHL(hl - 1)
	})

	def(0xE0, "LDH (a8),A", 12, func(c *CPU) { c.write8(0xFF00+uint16(c.fetch8()), c.A) })
	def(0xF0, "LDH A,(a8)", 12, func(c *CPU) { c.A = c.read8(0xFF00 + uint16(c.fetch8())) })
	def(0xE2, "LD (C),A", 8, func(c *CPU) { c.write8(0xFF00+uint16(c.C), c.A) })
	def(0xF2, "LD A,(C)", 8, func(c *CPU) { c.A = c.read8(0xFF00 + uint16(c.C)) })
	def(0xEA, "LD (a16),A", 16, func(c *CPU) { c.write8(c.fetch16(), c.A) })
	def(0xFA, "LD A,(a16)", 16, func(c *CPU) { c.A = c.read8(c.fetch16()) })
}

// 16-bit loads, stack, 16-bit arithmetic
func init() {
	pairs := [4]struct {
		name string
		get  func(*CPU) uint16
		set  func(*CPU, uint16)
	}{
		{"BC", (*CPU).getBC, (*CPU).setBC},
		{"DE", (*CPU).getDE, (*CPU).setDE},
		{"HL", (*CPU).getHL, (*CPU).setHL},
		{"SP", func(c *CPU) uint16 { return c.SP }, func(c *CPU, v uint16) { c.SP = v }},
	}
	for i := byte(0); i < 4; i++ {
		p := pairs[i]
		def(0x01|i<<4, "LD "+p.name+",d16", 12, func(c *CPU) { p.set(c, c.fetch16()) })
		def(0x03|i<<4, "INC "+p.name, 8, func(c *CPU) { p.set(c, p.get(c)+1) })
		def(0x0B|i<<4, "DEC "+p.name, 8, func(c *CPU) { p.set(c, p.get(c)-1) })
		def(0x09|i<<4, "ADD HL,"+p.name, 8, func(c *CPU) { c.addHL(p.get(c)) })
	}

	stack := [4]struct {
		name string
		get  func(*CPU) uint16
		set  func(*CPU, uint16)
	}{
		{"BC", (*CPU).getBC, (*CPU).setBC},
		{"DE", (*CPU).getDE, (*CPU).setDE},
		{"HL", (*CPU).getHL, (*CPU).setHL},
		{"AF", (*CPU).getAF, (*CPU).setAF}, // low nibble of F always reads 0
	}
	for i := byte(0); i < 4; i++ {
		p := stack[i]
		def(0xC5|i<<4, "PUSH "+p.name, 16, func(c *CPU) { c.push16(p.get(c)) })
		def(0xC1|i<<4, "POP "+p.name, 12, func(c *CPU) { p.set(c, c.pop16()) })
	}

	def(0x08, "LD (a16),SP", 20, func(c *CPU) { c.write16(c.fetch16(), c.SP) })
	def(0xF9, "LD SP,HL", 8, func(c *CPU) { c.SP = c.getHL() })

	// SP+r8 flags come from the unsigned low-byte add
	def(0xE8, "ADD SP,r8", 16, func(c *CPU) {
		off := c.fetch8()
		h := (c.SP&0x0F)+(uint16(off)&0x0F) > 0x0F
		cy := (c.SP&0xFF)+uint16(off) > 0xFF
		c.SP = uint16(int32(c.SP) + int32(int8(off)))
		c.setZNHC(false, false, h, cy)
	})
	def(0xF8, "LD HL,SP+r8", 12, func(c *CPU) {
		off := c.fetch8()
		h := (c.SP&0x0F)+(uint16(off)&0x0F) > 0x0F
		cy := (c.SP&0xFF)+uint16(off) > 0xFF
		c.setHL(uint16(int32(c.SP) + int32(int8(off))))
		c.setZNHC(false, false, h, cy)
	})
}

// 8-bit arithmetic/logic blocks
func init() {
	aluOps := [8]struct {
		name string
		fn   func(*CPU, byte)
	}{
		{"ADD A,", (*CPU).addA},
		{"ADC A,", (*CPU).adcA},
		{"SUB ", (*CPU).subA},
		{"SBC A,", (*CPU).sbcA},
		{"AND ", (*CPU).andA},
		{"XOR ", (*CPU).xorA},
		{"OR ", (*CPU).orA},
		{"CP ", (*CPU).cpA},
	}
	for g := byte(0); g < 8; g++ {
		g := g
		for r := byte(0); r < 8; r++ {
			r := r
			cyc := 4
			if r == 6 {
				cyc = 8
			}
			def(0x80|g<<3|r, aluOps[g].name+regNames[r], cyc, func(c *CPU) {
				aluOps[g].fn(c, c.getReg(r))
			})
		}
		def(0xC6|g<<3, aluOps[g].name+"d8", 8, func(c *CPU) {
			aluOps[g].fn(c, c.fetch8())
		})
	}

	for i := byte(0); i < 8; i++ {
		i := i
		cyc := 4
		if i == 6 {
			cyc = 12 // read-modify-write on (HL)
		}
		def(0x04|i<<3, "INC "+regNames[i], cyc, func(c *CPU) {
			c.setReg(i, c.inc8(c.getReg(i)))
		})
		def(0x05|i<<3, "DEC "+regNames[i], cyc, func(c *CPU) {
			c.setReg(i, c.dec8(c.getReg(i)))
		})
	}
}

// jumps, calls, returns
func init() {
	def(0x18, "JR r8", 12, func(c *CPU) {
		off := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(off))
	})
	def(0xC3, "JP a16", 16, func(c *CPU) { c.PC = c.fetch16() })
	def(0xE9, "JP HL", 4, func(c *CPU) { c.PC = c.getHL() })
	def(0xCD, "CALL a16", 24, func(c *CPU) {
		addr := c.fetch16()
		c.push16(c.PC)
		c.PC = addr
	})
	def(0xC9, "RET", 16, func(c *CPU) { c.PC = c.pop16() })
	def(0xD9, "RETI", 16, func(c *CPU) {
		c.PC = c.pop16()
		c.IME = true
	})

	for cc := byte(0); cc < 4; cc++ {
		cc := cc
		def(0x20|cc<<3, "JR "+condNames[cc]+",r8", 8, func(c *CPU) {
			off := int8(c.fetch8())
			if c.cond(cc) {
				c.PC = uint16(int32(c.PC) + int32(off))
				c.extra = 4
			}
		})
		def(0xC2|cc<<3, "JP "+condNames[cc]+",a16", 12, func(c *CPU) {
			addr := c.fetch16()
			if c.cond(cc) {
				c.PC = addr
				c.extra = 4
			}
		})
		def(0xC4|cc<<3, "CALL "+condNames[cc]+",a16", 12, func(c *CPU) {
			addr := c.fetch16()
			if c.cond(cc) {
				c.push16(c.PC)
				c.PC = addr
				c.extra = 12
			}
		})
		def(0xC0|cc<<3, "RET "+condNames[cc], 8, func(c *CPU) {
			if c.cond(cc) {
				c.PC = c.pop16()
				c.extra = 12
			}
		})
	}

	for i := byte(0); i < 8; i++ {
		i := i
		def(0xC7|i<<3, fmt.Sprintf("RST %02XH", i*8), 16, func(c *CPU) {
			c.push16(c.PC)
			c.PC = uint16(i) * 8
		})
	}
}
