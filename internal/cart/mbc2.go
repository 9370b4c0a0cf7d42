package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC2 has a built-in 512x4-bit RAM and a 4-bit ROM bank register.
// Control writes below 0x4000 are split on address bit 8: bit clear
// targets RAM enable, bit set targets the ROM bank number.
type MBC2 struct {
	rom []byte
	extRAM

	romBank    byte // 4 bits (0 maps to 1)
	ramEnabled bool
}

const mbc2RAMSize = 512

func NewMBC2(rom []byte) *MBC2 {
	m := &MBC2{rom: rom, extRAM: newExtRAM(mbc2RAMSize)}
	m.romBank = 1
	return m
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		banks := len(m.rom) / 0x4000
		if banks == 0 {
			return 0xFF
		}
		bank := int(m.romBank) % banks
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		// only 512 nibbles exist; A200-BFFF echoes them
		v := m.extRAM.read(int(addr-0xA000) & 0x1FF)
		return 0xF0 | v&0x0F
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			m.romBank = value & 0x0F
			if m.romBank == 0 {
				m.romBank = 1
			}
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.extRAM.write(int(addr-0xA000)&0x1FF, value&0x0F)
	}
}

// BatteryBacked implementation
func (m *MBC2) SaveRAM() []byte     { return m.snapshot() }
func (m *MBC2) LoadRAM(data []byte) { m.restore(data) }

type mbc2State struct {
	RAM        []byte
	RomBank    byte
	RamEnabled bool
}

func (m *MBC2) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc2State{RAM: m.snapshot(), RomBank: m.romBank, RamEnabled: m.ramEnabled}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s.RAM)
	m.romBank, m.ramEnabled = s.RomBank, s.RamEnabled
}
