package cpu

import "fmt"

var cbTable [256]opcode

func defCB(op byte, name string, cycles int, fn func(c *CPU)) {
	if cbTable[op].fn != nil {
		panic(fmt.Sprintf("CB opcode %02X defined twice", op))
	}
	cbTable[op] = opcode{name: name, cycles: cycles, fn: fn}
}

// --- rotate/shift helpers (set all flags) ---

func (c *CPU) rlc(v byte) byte {
	res := v<<1 | v>>7
	c.setZNHC(res == 0, false, false, v&0x80 != 0)
	return res
}

func (c *CPU) rrc(v byte) byte {
	res := v>>1 | v<<7
	c.setZNHC(res == 0, false, false, v&0x01 != 0)
	return res
}

func (c *CPU) rl(v byte) byte {
	var carryIn byte
	if c.F&flagC != 0 {
		carryIn = 1
	}
	res := v<<1 | carryIn
	c.setZNHC(res == 0, false, false, v&0x80 != 0)
	return res
}

func (c *CPU) rr(v byte) byte {
	var carryIn byte
	if c.F&flagC != 0 {
		carryIn = 0x80
	}
	res := v>>1 | carryIn
	c.setZNHC(res == 0, false, false, v&0x01 != 0)
	return res
}

func (c *CPU) sla(v byte) byte {
	res := v << 1
	c.setZNHC(res == 0, false, false, v&0x80 != 0)
	return res
}

func (c *CPU) sra(v byte) byte {
	res := v>>1 | v&0x80
	c.setZNHC(res == 0, false, false, v&0x01 != 0)
	return res
}

func (c *CPU) swap(v byte) byte {
	res := v<<4 | v>>4
	c.setZNHC(res == 0, false, false, false)
	return res
}

func (c *CPU) srl(v byte) byte {
	res := v >> 1
	c.setZNHC(res == 0, false, false, v&0x01 != 0)
	return res
}

func init() {
	rotOps := [8]struct {
		name string
		fn   func(*CPU, byte) byte
	}{
		{"RLC", (*CPU).rlc},
		{"RRC", (*CPU).rrc},
		{"RL", (*CPU).rl},
		{"RR", (*CPU).rr},
		{"SLA", (*CPU).sla},
		{"SRA", (*CPU).sra},
		{"SWAP", (*CPU).swap},
		{"SRL", (*CPU).srl},
	}
	for g := byte(0); g < 8; g++ {
		g := g
		for r := byte(0); r < 8; r++ {
			r := r
			cyc := 8
			if r == 6 {
				cyc = 16 // read-modify-write on (HL)
			}
			defCB(g<<3|r, rotOps[g].name+" "+regNames[r], cyc, func(c *CPU) {
				c.setReg(r, rotOps[g].fn(c, c.getReg(r)))
			})
		}
	}

	for bit := byte(0); bit < 8; bit++ {
		bit := bit
		for r := byte(0); r < 8; r++ {
			r := r
			// BIT only reads its operand: 12 cycles on (HL), not 16
			bitCyc := 8
			if r == 6 {
				bitCyc = 12
			}
			defCB(0x40|bit<<3|r, fmt.Sprintf("BIT %d,%s", bit, regNames[r]), bitCyc, func(c *CPU) {
				f := c.F&flagC | flagH
				if c.getReg(r)&(1<<bit) == 0 {
					f |= flagZ
				}
				c.F = f
			})

			rwCyc := 8
			if r == 6 {
				rwCyc = 16
			}
			defCB(0x80|bit<<3|r, fmt.Sprintf("RES %d,%s", bit, regNames[r]), rwCyc, func(c *CPU) {
				c.setReg(r, c.getReg(r)&^(1<<bit))
			})
			defCB(0xC0|bit<<3|r, fmt.Sprintf("SET %d,%s", bit, regNames[r]), rwCyc, func(c *CPU) {
				c.setReg(r, c.getReg(r)|1<<bit)
			})
		}
	}
}
