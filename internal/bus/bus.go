package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"dmgemu/internal/apu"
	"dmgemu/internal/cart"
	"dmgemu/internal/ppu"
)

// Interrupt bits in IF/IE, in priority order (lowest bit wins).
const (
	IntVBlank = 0
	IntSTAT   = 1
	IntTimer  = 2
	IntSerial = 3
	IntJoypad = 4
)

// Joypad button masks for SetJoypadState. Low nibble is the D-pad group,
// high nibble the button group, matching the two JOYP select lines.
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

// Bus owns the CPU-visible address space: cartridge, VRAM/OAM via the PPU,
// WRAM/HRAM, and the IO registers (joypad, serial, timer, interrupts, APU,
// OAM DMA, boot ROM control). Tick is the single clock fan-out; the CPU
// calls it once per instruction with the cycle cost.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU
	apu  *apu.APU

	wram [0x2000]byte // 0xC000-0xDFFF, mirrored at 0xE000-0xFDFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	ifReg byte // 0xFF0F, lower 5 bits
	ieReg byte // 0xFFFF

	// joypad: select lines as written to FF00 and the pressed-button mask
	joypSelect byte
	joypState  byte

	// serial
	sb      byte // 0xFF01
	sc      byte // 0xFF02
	serialW io.Writer

	// timer: divInternal counts every CPU cycle; DIV is its high byte.
	divInternal   uint16
	tima          byte // 0xFF05
	tma           byte // 0xFF06
	tac           byte // 0xFF07 low 3 bits
	reloadPending bool
	reloadCounter int

	// OAM DMA
	dmaReg    byte
	dmaActive bool
	dmaSrc    uint16
	dmaIdx    int

	bootROM     []byte
	bootEnabled bool
}

// New builds a Bus around a raw ROM image using the lenient cartridge
// fallback, so unheadered test images still run.
func New(rom []byte) *Bus {
	return NewWith(cart.NewCartridge(rom))
}

// NewWith builds a Bus around an already-constructed cartridge.
func NewWith(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.RequestInterrupt(bit) })
	b.apu = apu.New(48000)
	return b
}

func (b *Bus) PPU() *ppu.PPU        { return b.ppu }
func (b *Bus) APU() *apu.APU        { return b.apu }
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// SetBootROM installs a 256-byte boot ROM overlay over 0x0000-0x00FF.
// A write to FF50 unmaps it.
func (b *Bus) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	} else {
		b.bootROM = nil
		b.bootEnabled = false
	}
}

// EnableBoot re-enables or disables the installed boot ROM overlay.
func (b *Bus) EnableBoot(on bool) {
	b.bootEnabled = on && len(b.bootROM) >= 0x100
}

// SetSerialWriter attaches a sink for bytes sent over the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialW = w }

// RequestInterrupt sets the given bit in IF.
func (b *Bus) RequestInterrupt(bit int) { b.ifReg |= 1 << bit }

// ClearInterrupt clears the given bit in IF (interrupt acknowledge).
func (b *Bus) ClearInterrupt(bit int) { b.ifReg &^= 1 << bit }

// PendingInterrupts returns IE&IF&0x1F; bit order is priority order.
func (b *Bus) PendingInterrupts() byte { return b.ieReg & b.ifReg & 0x1F }

// SetJoypadState replaces the pressed-button mask. A press transition
// raises the joypad interrupt.
func (b *Bus) SetJoypadState(mask byte) {
	newly := mask &^ b.joypState
	b.joypState = mask
	if newly != 0 {
		b.RequestInterrupt(IntJoypad)
	}
}

// JoypadPressed reports whether any button is currently held. STOP uses
// this to decide when to resume.
func (b *Bus) JoypadPressed() bool { return b.joypState != 0 }

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.CPURead(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00: // echo RAM
		return b.wram[addr-0xE000]
	case addr < 0xFEA0:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr < 0xFF00: // unusable
		return 0xFF
	case addr < 0xFF80:
		return b.readIO(addr)
	case addr < 0xFFFF:
		return b.hram[addr-0xFF80]
	default:
		return b.ieReg
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xE000:
		b.wram[addr-0xC000] = value
	case addr < 0xFE00:
		b.wram[addr-0xE000] = value
	case addr < 0xFEA0:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr < 0xFF00:
		// unusable region, writes dropped
	case addr < 0xFF80:
		b.writeIO(addr, value)
	case addr < 0xFFFF:
		b.hram[addr-0xFF80] = value
	default:
		b.ieReg = value
	}
}

func (b *Bus) readIO(addr uint16) byte {
	switch {
	case addr == 0xFF00:
		return b.joypRead()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | b.sc&0x81
	case addr == 0xFF04:
		return byte(b.divInternal >> 8)
	case addr == 0xFF05:
		return b.tima
	case addr == 0xFF06:
		return b.tma
	case addr == 0xFF07:
		return 0xF8 | b.tac&0x07
	case addr == 0xFF0F:
		return 0xE0 | b.ifReg&0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF46:
		return b.dmaReg
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	default:
		return 0xFF
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch {
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value
		if value&0x80 != 0 {
			b.doSerialTransfer()
		}
	case addr == 0xFF04:
		b.writeDIV()
	case addr == 0xFF05:
		// a write during the overflow delay cancels the pending reload
		b.tima = value
		b.reloadPending = false
	case addr == 0xFF06:
		b.tma = value
	case addr == 0xFF07:
		b.writeTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.startDMA(value)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0 {
			b.bootEnabled = false
		}
	}
}

func (b *Bus) joypRead() byte {
	v := 0xC0 | b.joypSelect | 0x0F
	if b.joypSelect&0x10 == 0 { // P14 low: D-pad group
		v &^= b.joypState & 0x0F
	}
	if b.joypSelect&0x20 == 0 { // P15 low: button group
		v &^= b.joypState >> 4 & 0x0F
	}
	return v
}

// doSerialTransfer shifts the byte out immediately: the sink gets SB, the
// missing link partner supplies 0xFF back, and the Serial interrupt fires.
func (b *Bus) doSerialTransfer() {
	if b.serialW != nil {
		_, _ = b.serialW.Write([]byte{b.sb})
	}
	b.sb = 0xFF
	b.sc &^= 0x80
	b.RequestInterrupt(IntSerial)
}

// --- timer ---

// timerInput is the level of the DIV bit selected by TAC, gated by the
// enable bit. TIMA increments on its falling edges.
func (b *Bus) timerInput() bool {
	if b.tac&0x04 == 0 {
		return false
	}
	var bit uint
	switch b.tac & 0x03 {
	case 0:
		bit = 9
	case 1:
		bit = 3
	case 2:
		bit = 5
	case 3:
		bit = 7
	}
	return b.divInternal&(1<<bit) != 0
}

func (b *Bus) timerTick() {
	if b.reloadPending {
		b.reloadCounter--
		if b.reloadCounter <= 0 {
			b.reloadPending = false
			b.tima = b.tma
			b.RequestInterrupt(IntTimer)
		}
	}
	prev := b.timerInput()
	b.divInternal++
	b.timerEdge(prev)
}

// timerEdge increments TIMA if the selected input just fell. Edges are
// ignored while a reload is pending.
func (b *Bus) timerEdge(prev bool) {
	if b.reloadPending {
		return
	}
	if prev && !b.timerInput() {
		b.tima++
		if b.tima == 0 {
			b.reloadPending = true
			b.reloadCounter = 4
		}
	}
}

// writeDIV resets the whole internal counter. The reset itself can produce
// a falling edge on the selected bit, which increments TIMA.
func (b *Bus) writeDIV() {
	prev := b.timerInput()
	b.divInternal = 0
	b.timerEdge(prev)
}

// writeTAC can likewise produce a falling edge when the newly selected
// bit is low while the old one was high.
func (b *Bus) writeTAC(value byte) {
	prev := b.timerInput()
	b.tac = value & 0x07
	b.timerEdge(prev)
}

// --- OAM DMA ---

func (b *Bus) startDMA(value byte) {
	b.dmaReg = value
	b.dmaActive = true
	b.dmaSrc = uint16(value) << 8
	b.dmaIdx = 0
}

// dmaRead reads the DMA source bypassing the CPU-side mode lockouts.
func (b *Bus) dmaRead(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.RawVRAM(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00:
		return b.wram[addr-0xE000]
	default:
		return 0xFF
	}
}

func (b *Bus) dmaTick() {
	if !b.dmaActive {
		return
	}
	b.ppu.WriteOAMRaw(b.dmaIdx, b.dmaRead(b.dmaSrc+uint16(b.dmaIdx)))
	b.dmaIdx++
	if b.dmaIdx >= 0xA0 {
		b.dmaActive = false
	}
}

// Tick advances the shared clock by n CPU cycles: timer edges and the DMA
// engine are stepped per cycle, the PPU and APU take the batch.
func (b *Bus) Tick(n int) {
	if n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		b.timerTick()
		b.dmaTick()
	}
	b.ppu.Tick(n)
	b.apu.Tick(n)
}

// --- Save/Load state ---

type busState struct {
	WRAM [0x2000]byte
	HRAM [0x7F]byte

	IF, IE                 byte
	JoypSelect, JoypState  byte
	SB, SC                 byte
	Div                    uint16
	TIMA, TMA, TAC         byte
	ReloadPending          bool
	ReloadCounter          int
	DMAReg                 byte
	DMAActive              bool
	DMASrc                 uint16
	DMAIdx                 int
	BootEnabled            bool

	PPU  []byte
	APU  []byte
	Cart []byte
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	s := busState{
		WRAM: b.wram, HRAM: b.hram,
		IF: b.ifReg, IE: b.ieReg,
		JoypSelect: b.joypSelect, JoypState: b.joypState,
		SB: b.sb, SC: b.sc,
		Div: b.divInternal, TIMA: b.tima, TMA: b.tma, TAC: b.tac,
		ReloadPending: b.reloadPending, ReloadCounter: b.reloadCounter,
		DMAReg: b.dmaReg, DMAActive: b.dmaActive, DMASrc: b.dmaSrc, DMAIdx: b.dmaIdx,
		BootEnabled: b.bootEnabled,
		PPU:         b.ppu.SaveState(),
		APU:         b.apu.SaveState(),
		Cart:        b.cart.SaveState(),
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ifReg, b.ieReg = s.IF, s.IE
	b.joypSelect, b.joypState = s.JoypSelect, s.JoypState
	b.sb, b.sc = s.SB, s.SC
	b.divInternal, b.tima, b.tma, b.tac = s.Div, s.TIMA, s.TMA, s.TAC
	b.reloadPending, b.reloadCounter = s.ReloadPending, s.ReloadCounter
	b.dmaReg, b.dmaActive, b.dmaSrc, b.dmaIdx = s.DMAReg, s.DMAActive, s.DMASrc, s.DMAIdx
	b.bootEnabled = s.BootEnabled
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	b.cart.LoadState(s.Cart)
}
