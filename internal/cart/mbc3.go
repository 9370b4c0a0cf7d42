package cart

import (
	"bytes"
	"encoding/gob"
	"time"
)

// nowUnix is the wall clock used to advance the RTC; tests replace it.
var nowUnix = func() int64 { return time.Now().Unix() }

// MBC3 implements ROM/RAM banking plus the real-time clock.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (08-0C)
// - 6000-7FFF: latch clock on a 0x00 -> 0x01 write sequence
// - A000-BFFF: external RAM or the selected latched RTC register
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)
type MBC3 struct {
	rom []byte
	extRAM

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3 for RAM, 0x08..0x0C selects an RTC register

	// live RTC counters, advanced from the wall clock on access
	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9 bits
	rtcHalt, rtcCarry       bool
	lastRTCWallSec          int64

	// latched copies, frozen by the 6000-range latch sequence
	latSec, latMin, latHour byte
	latDay                  uint16
	latHalt, latCarry       bool
	latchPrev               byte
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom, extRAM: newExtRAM(ramSize)}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

// updateRTC folds elapsed wall-clock seconds into the live counters.
// The day counter is 9 bits; overflow sets the carry and wraps.
func (m *MBC3) updateRTC() {
	now := nowUnix()
	if m.rtcHalt {
		m.lastRTCWallSec = now
		return
	}
	delta := now - m.lastRTCWallSec
	m.lastRTCWallSec = now
	if delta <= 0 {
		return
	}

	total := int64(m.rtcSec) + delta
	m.rtcSec = byte(total % 60)
	total = int64(m.rtcMin) + total/60
	m.rtcMin = byte(total % 60)
	total = int64(m.rtcHour) + total/60
	m.rtcHour = byte(total % 24)
	days := int64(m.rtcDay) + total/24
	if days > 0x1FF {
		m.rtcCarry = true
	}
	m.rtcDay = uint16(days & 0x1FF)
}

func (m *MBC3) latchRTC() {
	m.updateRTC()
	m.latSec, m.latMin, m.latHour = m.rtcSec, m.rtcMin, m.rtcHour
	m.latDay, m.latHalt, m.latCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
}

func (m *MBC3) Read(addr uint16) byte {
	m.updateRTC()
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
		bank := int(m.romBank&0x7F) % banks
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.ramBank >= 0x08 {
			return m.readRTCReg()
		}
		if len(m.data) == 0 {
			return 0xFF
		}
		return m.extRAM.read(int(m.ramBank&0x03)*0x2000 + int(addr-0xA000))
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 || (value >= 0x08 && value <= 0x0C) {
			m.ramBank = value
		} else {
			m.ramBank = 0
		}
	case addr < 0x8000:
		if m.latchPrev == 0x00 && value == 0x01 {
			m.latchRTC()
		}
		m.latchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.ramBank >= 0x08 {
			m.writeRTCReg(value)
			return
		}
		if len(m.data) == 0 {
			return
		}
		m.extRAM.write(int(m.ramBank&0x03)*0x2000+int(addr-0xA000), value)
	}
}

func (m *MBC3) readRTCReg() byte {
	switch m.ramBank {
	case 0x08:
		return m.latSec
	case 0x09:
		return m.latMin
	case 0x0A:
		return m.latHour
	case 0x0B:
		return byte(m.latDay & 0xFF)
	case 0x0C:
		v := byte(m.latDay >> 8 & 0x01)
		if m.latHalt {
			v |= 0x40
		}
		if m.latCarry {
			v |= 0x80
		}
		return v
	}
	return 0xFF
}

func (m *MBC3) writeRTCReg(value byte) {
	m.updateRTC()
	switch m.ramBank {
	case 0x08:
		m.rtcSec = value & 0x3F
	case 0x09:
		m.rtcMin = value & 0x3F
	case 0x0A:
		m.rtcHour = value & 0x1F
	case 0x0B:
		m.rtcDay = m.rtcDay&0x100 | uint16(value)
	case 0x0C:
		m.rtcDay = m.rtcDay&0xFF | uint16(value&0x01)<<8
		m.rtcHalt = value&0x40 != 0
		m.rtcCarry = value&0x80 != 0
	}
	m.dirty = true
}

// rtcTrailerLen is the RTC block appended after the RAM bytes in .sav data.
const rtcTrailerLen = 14

// BatteryBacked implementation; RTC state rides along after the RAM bytes.
func (m *MBC3) SaveRAM() []byte {
	m.updateRTC()
	out := m.snapshot()
	t := make([]byte, rtcTrailerLen)
	t[0], t[1], t[2] = m.rtcSec, m.rtcMin, m.rtcHour
	t[3], t[4] = byte(m.rtcDay), byte(m.rtcDay>>8)
	if m.rtcHalt {
		t[5] |= 0x01
	}
	if m.rtcCarry {
		t[5] |= 0x02
	}
	wall := uint64(m.lastRTCWallSec)
	for i := 0; i < 8; i++ {
		t[6+i] = byte(wall >> (8 * i))
	}
	return append(out, t...)
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(data) >= len(m.data)+rtcTrailerLen {
		t := data[len(m.data):]
		m.rtcSec, m.rtcMin, m.rtcHour = t[0], t[1], t[2]
		m.rtcDay = uint16(t[3]) | uint16(t[4]&0x01)<<8
		m.rtcHalt = t[5]&0x01 != 0
		m.rtcCarry = t[5]&0x02 != 0
		var wall uint64
		for i := 0; i < 8; i++ {
			wall |= uint64(t[6+i]) << (8 * i)
		}
		m.lastRTCWallSec = int64(wall)
		data = data[:len(m.data)]
	}
	m.restore(data)
}

type mbc3State struct {
	RAM        []byte
	RomBank    byte
	RamBank    byte
	RamEnabled bool

	Sec, Min, Hour byte
	Day            uint16
	Halt, Carry    bool
	WallSec        int64

	LatSec, LatMin, LatHour byte
	LatDay                  uint16
	LatHalt, LatCarry       bool
	LatchPrev               byte
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc3State{
		RAM: m.snapshot(), RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled,
		Sec: m.rtcSec, Min: m.rtcMin, Hour: m.rtcHour, Day: m.rtcDay,
		Halt: m.rtcHalt, Carry: m.rtcCarry, WallSec: m.lastRTCWallSec,
		LatSec: m.latSec, LatMin: m.latMin, LatHour: m.latHour, LatDay: m.latDay,
		LatHalt: m.latHalt, LatCarry: m.latCarry, LatchPrev: m.latchPrev,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s.RAM)
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.Sec, s.Min, s.Hour, s.Day
	m.rtcHalt, m.rtcCarry, m.lastRTCWallSec = s.Halt, s.Carry, s.WallSec
	m.latSec, m.latMin, m.latHour, m.latDay = s.LatSec, s.LatMin, s.LatHour, s.LatDay
	m.latHalt, m.latCarry, m.latchPrev = s.LatHalt, s.LatCarry, s.LatchPrev
}
