package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC5 supports up to 8MB ROM (9-bit bank number) and 128KB RAM.
type MBC5 struct {
	rom []byte
	extRAM

	romBank    uint16 // 9 bits (0..511); bank 0 is selectable on MBC5
	ramBank    byte   // 0..15
	ramEnabled bool
}

func NewMBC5(rom []byte, ramSize int) *MBC5 {
	m := &MBC5{rom: rom, extRAM: newExtRAM(ramSize)}
	m.romBank = 1
	return m
}

func (m *MBC5) Read(addr uint16) byte {
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
		if !m.ramEnabled || len(m.data) == 0 {
			return 0xFF
		}
		return m.extRAM.read(int(m.ramBank&0x0F)*0x2000 + int(addr-0xA000))
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x3000:
		// low 8 bits of ROM bank
		m.romBank = m.romBank&0x100 | uint16(value)
	case addr < 0x4000:
		// bit 8 of ROM bank
		if value&0x01 != 0 {
			m.romBank |= 0x100
		} else {
			m.romBank &^= 0x100
		}
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.data) == 0 {
			return
		}
		m.extRAM.write(int(m.ramBank&0x0F)*0x2000+int(addr-0xA000), value)
	}
}

// BatteryBacked implementation
func (m *MBC5) SaveRAM() []byte     { return m.snapshot() }
func (m *MBC5) LoadRAM(data []byte) { m.restore(data) }

type mbc5State struct {
	RAM        []byte
	RomBank    uint16
	RamBank    byte
	RamEnabled bool
}

func (m *MBC5) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc5State{RAM: m.snapshot(), RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC5) LoadState(data []byte) {
	var s mbc5State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s.RAM)
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
}
