package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC1 implements MBC1 ROM/RAM banking: ROM up to 2MB, RAM up to 32KB.
type MBC1 struct {
	rom []byte
	extRAM

	romBankLow5       byte // lower 5 bits of ROM bank number (0->1 remapped)
	ramBankOrRomHigh2 byte // either RAM bank (mode1) or ROM bank high bits (mode0)
	ramEnabled        bool
	modeSelect        byte // 0: ROM banking (default), 1: RAM banking
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom, extRAM: newExtRAM(ramSize)}
	// default to bank 1 for switchable area
	m.romBankLow5 = 1
	return m
}

// romBankCount reports how many 16KB banks the image actually holds.
// Bank selects are reduced modulo this so oversized selects wrap.
func (m *MBC1) romBankCount() int {
	n := len(m.rom) / 0x4000
	if n == 0 {
		return 1
	}
	return n
}

func (m *MBC1) romRead(bank int, addr uint16) byte {
	bank %= m.romBankCount()
	off := bank*0x4000 + int(addr&0x3FFF)
	if off < len(m.rom) {
		return m.rom[off]
	}
	return 0xFF
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if m.modeSelect == 0 {
			return m.romRead(0, addr)
		}
		// mode 1: high bits apply to the bank 0 region too
		return m.romRead(int(m.ramBankOrRomHigh2&0x03)<<5, addr)
	case addr < 0x8000:
		return m.romRead(m.effectiveROMBank(), addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.data) == 0 {
			return 0xFF
		}
		return m.extRAM.read(m.ramOffset(addr))
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		// RAM enable: low 4 bits must be 0x0A
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		// ROM bank low 5 bits (0 maps to 1)
		m.romBankLow5 = value & 0x1F
		if m.romBankLow5 == 0 {
			m.romBankLow5 = 1
		}
	case addr < 0x6000:
		m.ramBankOrRomHigh2 = value & 0x03
	case addr < 0x8000:
		m.modeSelect = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.data) == 0 {
			return
		}
		m.extRAM.write(m.ramOffset(addr), value)
	}
}

func (m *MBC1) ramOffset(addr uint16) int {
	bank := 0
	if m.modeSelect == 1 {
		bank = int(m.ramBankOrRomHigh2 & 0x03)
	}
	return bank*0x2000 + int(addr-0xA000)
}

func (m *MBC1) effectiveROMBank() int {
	high := int(m.ramBankOrRomHigh2 & 0x03)
	return int(m.romBankLow5) | high<<5
}

// BatteryBacked implementation
func (m *MBC1) SaveRAM() []byte     { return m.snapshot() }
func (m *MBC1) LoadRAM(data []byte) { m.restore(data) }

type mbc1State struct {
	RAM         []byte
	RomBankLow5 byte
	HighBits    byte
	RamEnabled  bool
	Mode        byte
}

func (m *MBC1) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc1State{RAM: m.snapshot(), RomBankLow5: m.romBankLow5,
		HighBits: m.ramBankOrRomHigh2, RamEnabled: m.ramEnabled, Mode: m.modeSelect}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s.RAM)
	m.romBankLow5, m.ramBankOrRomHigh2 = s.RomBankLow5, s.HighBits
	m.ramEnabled, m.modeSelect = s.RamEnabled, s.Mode
}
