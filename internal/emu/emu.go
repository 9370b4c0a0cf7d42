package emu

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/cespare/xxhash"

	"dmgemu/internal/bus"
	"dmgemu/internal/cart"
	"dmgemu/internal/cpu"
	"dmgemu/internal/ppu"
	"dmgemu/pkg/romfile"
)

type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine aggregates the CPU, bus and renderer into a steppable console.
type Machine struct {
	cfg  Config
	w, h int
	fb   []byte // RGBA 160x144*4
	bgci []byte // BG/window color index (0..3) per pixel for sprite priority
	// core components
	bus     *bus.Bus
	cpu     *cpu.CPU
	header  *cart.Header
	romPath string
	bootROM []byte
}

func New(cfg Config) *Machine {
	return &Machine{
		cfg: cfg, w: 160, h: 144,
		fb:   make([]byte, 160*144*4),
		bgci: make([]byte, 160*144),
	}
}

// LoadCartridge validates the ROM header, builds the mapper and wires a fresh
// bus+CPU around it. Returns cart.ErrHeader / cart.ErrUnsupportedMBC wrapped
// with context on bad images.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, h, err := cart.Load(rom)
	if err != nil {
		return fmt.Errorf("load cartridge: %w", err)
	}
	m.header = h

	useBoot := len(boot) >= 0x100
	b := bus.NewWith(c)
	if useBoot {
		b.SetBootROM(boot)
	}
	cp := cpu.New(b)
	if useBoot {
		// Boot ROM path: start at 0x0000; the boot code sets up IO itself
		cp.SP = 0xFFFE
		cp.PC = 0x0000
		cp.IME = false
	} else {
		cp.ResetNoBoot()
		cp.SetPC(0x0100)
	}
	m.bus = b
	m.cpu = cp
	m.bootROM = nil
	if useBoot {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, boot[:0x100])
	}
	if !useBoot {
		m.applyDMGPostBootIO()
	}
	return nil
}

// SetUseFetcherBG toggles the BG renderer between classic and fetcher-based path.
func (m *Machine) SetUseFetcherBG(on bool) { m.cfg.UseFetcherBG = on }

// Header returns the parsed cartridge header of the loaded ROM, or nil.
func (m *Machine) Header() *cart.Header { return m.header }

// LoadROMFromFile replaces the current cartridge with a ROM from disk,
// preserving the boot ROM setting. Compressed images (.zip/.gz/.7z) are
// unpacked transparently.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := romfile.LoadFile(path)
	if err != nil {
		return err
	}
	var boot []byte
	if len(m.bootROM) >= 0x100 {
		boot = m.bootROM
	}
	if err := m.LoadCartridge(data, boot); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the currently loaded ROM file path, if any.
func (m *Machine) ROMPath() string {
	return m.romPath
}

// SetROMPath sets the current ROM path (used by UI for state/save association).
// This does not reload the ROM and should be called only after a successful cartridge load.
func (m *Machine) SetROMPath(path string) { m.romPath = path }

// SetBootROM sets the DMG boot ROM to be used when loading ROMs or executing with boot.
func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, data[:0x100])
	} else {
		m.bootROM = nil
	}
	if m.bus != nil {
		m.bus.SetBootROM(m.bootROM)
	}
}

// HasBootROM reports whether a DMG boot ROM is configured on this machine.
func (m *Machine) HasBootROM() bool { return len(m.bootROM) >= 0x100 }

// ResetPostBoot resets CPU and IO to DMG post-boot state (no boot ROM), keeping the loaded cartridge.
func (m *Machine) ResetPostBoot() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	m.applyDMGPostBootIO()
	m.bus.EnableBoot(false)
}

// ResetWithBoot re-enables the boot ROM (if present) and restarts execution from 0x0000.
func (m *Machine) ResetWithBoot() {
	if m.cpu == nil || m.bus == nil || len(m.bootROM) < 0x100 {
		// Fallback to post-boot reset if no boot ROM
		m.ResetPostBoot()
		return
	}
	m.bus.SetBootROM(m.bootROM)
	m.bus.EnableBoot(true)
	m.cpu.SP = 0xFFFE
	m.cpu.PC = 0x0000
	m.cpu.IME = false
}

// applyDMGPostBootIO sets a minimal set of IO registers to DMG post-boot defaults,
// so ROMs can start from PC=0x0100 without a boot ROM and still have LCD enabled.
func (m *Machine) applyDMGPostBootIO() {
	if m == nil || m.bus == nil {
		return
	}
	b := m.bus
	// Joypad: no group selected, high bits set
	b.Write(0xFF00, 0xCF)
	// Timers
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC (disabled)
	// PPU regs (enable LCD, BG/window; default palettes)
	b.Write(0xFF40, 0x91) // LCDC: LCD on, BG on, tile data 8000, BG map 9800, sprites on 8x8
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	// IE: none enabled by default
	b.Write(0xFFFF, 0x00)
	// APU defaults (power on + route all to both, medium volume)
	b.Write(0xFF26, 0x80) // NR52 power
	b.Write(0xFF24, 0x77) // NR50: Vin off, L=7, R=7
	b.Write(0xFF25, 0xFF) // NR51: route all ch to both
	// Leave channels off until games configure them
}

// SaveBattery returns the battery-backed external RAM, if the cartridge has
// any. The actual file IO is managed by the caller (e.g., cmd/gbemu).
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m == nil || m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// LoadBattery loads external RAM bytes into the cartridge if supported.
func (m *Machine) LoadBattery(data []byte) bool {
	if m == nil || m.bus == nil {
		return false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
		bb.ClearDirty()
		return true
	}
	return false
}

// BatteryDirty reports whether external RAM changed since the last save.
func (m *Machine) BatteryDirty() bool {
	if m == nil || m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	return ok && bb.Dirty()
}

// ClearBatteryDirty marks the current external RAM contents as persisted.
func (m *Machine) ClearBatteryDirty() {
	if m == nil || m.bus == nil {
		return
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.ClearDirty()
	}
}

// frameCycles is one full LCD refresh: 154 lines of 456 dots.
const frameCycles = 70224

func (m *Machine) StepFrame() {
	m.StepFrameNoRender()
	// Render background, window, then sprites
	m.renderBG()
	m.renderWindow()
	m.renderSprites()
}

// StepFrameNoRender advances the core by one frame worth of cycles without
// producing pixels; used by headless and test-ROM runs.
func (m *Machine) StepFrameNoRender() {
	if m.cpu == nil {
		return
	}
	acc := 0
	for acc < frameCycles {
		acc += m.cpu.Step()
	}
}

// StepInstruction executes a single instruction and returns its cycle cost.
func (m *Machine) StepInstruction() int {
	if m.cpu == nil {
		return 0
	}
	return m.cpu.Step()
}

// RunUntilPC steps until PC equals target or maxCycles elapse. Returns the
// cycles consumed and whether the target was hit.
func (m *Machine) RunUntilPC(target uint16, maxCycles int) (int, bool) {
	if m.cpu == nil {
		return 0, false
	}
	acc := 0
	for acc < maxCycles {
		if m.cpu.PC == target {
			return acc, true
		}
		acc += m.cpu.Step()
	}
	return acc, m.cpu.PC == target
}

// ReadMemory reads a byte through the bus; for debugger use between steps.
func (m *Machine) ReadMemory(addr uint16) byte {
	if m.bus == nil {
		return 0xFF
	}
	return m.bus.Read(addr)
}

// WriteMemory writes a byte through the bus; for debugger use between steps.
func (m *Machine) WriteMemory(addr uint16, v byte) {
	if m.bus != nil {
		m.bus.Write(addr, v)
	}
}

// CPU exposes the CPU core for debugger/register access.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// Bus exposes the bus for tools and tests.
func (m *Machine) Bus() *bus.Bus { return m.bus }

func (m *Machine) Framebuffer() []byte { return m.fb }

// FrameHash fingerprints the current framebuffer; identical frames hash equal.
func (m *Machine) FrameHash() uint64 { return xxhash.Sum64(m.fb) }

// FrameCount returns the number of frames the PPU has completed.
func (m *Machine) FrameCount() uint64 {
	if m.bus == nil {
		return 0
	}
	return m.bus.PPU().FrameCount()
}

// SetSerialWriter connects an io.Writer to receive bytes written to the serial port (FF01/FF02).
// Useful for running test ROMs that report via serial.
func (m *Machine) SetSerialWriter(w interface{ Write([]byte) (int, error) }) {
	if m != nil && m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// APUPullSamples returns up to max mono int16 samples from the APU ring buffer.
func (m *Machine) APUPullSamples(max int) []int16 {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullSamples(max)
}

// APUPullStereo returns up to max stereo frames as interleaved int16 L,R pairs.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// APUBufferedStereo returns the number of stereo frames ready in the APU buffer.
func (m *Machine) APUBufferedStereo() int {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// APUClearAudioLatency drops all buffered stereo frames to re-sync audio with video.
func (m *Machine) APUClearAudioLatency() {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return
	}
	m.bus.APU().ClearStereoBuffer()
}

// APUCapBufferedStereo trims the buffered frames to at most target frames.
func (m *Machine) APUCapBufferedStereo(target int) {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return
	}
	m.bus.APU().TrimStereoTo(target)
}

// --- Save/Load state ---
type machineState struct {
	Bus []byte
	CPU []byte
}

func (m *Machine) SaveState() []byte {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(machineState{Bus: m.bus.SaveState(), CPU: m.cpu.SaveState()})
	return buf.Bytes()
}

func (m *Machine) LoadState(data []byte) error {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	var s machineState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return err
	}
	m.bus.LoadState(s.Bus)
	m.cpu.LoadState(s.CPU)
	return nil
}

func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return nil
	}
	return os.WriteFile(path, data, 0644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}

func (m *Machine) SetButtons(b Buttons) {
	if m.bus == nil {
		return
	}
	// Map buttons to joypad mask
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.bus.SetJoypadState(mask)
}

// shadeDMG maps a 2-bit color index through a DMG palette byte to a gray level.
func shadeDMG(pal byte, ci byte) byte {
	switch (pal >> (ci * 2)) & 0x03 {
	case 0:
		return 0xFF
	case 1:
		return 0xC0
	case 2:
		return 0x60
	default:
		return 0x00
	}
}

// lineRegsOrLive returns the captured per-line registers, falling back to the
// live registers before the first mode-3 capture of a line.
func (m *Machine) lineRegsOrLive(y int) ppu.LineRegs {
	lr := m.bus.PPU().LineRegs(y)
	if lr.LCDC == 0 {
		lr.LCDC = m.bus.Read(0xFF40)
		lr.SCY = m.bus.Read(0xFF42)
		lr.SCX = m.bus.Read(0xFF43)
		lr.BGP = m.bus.Read(0xFF47)
		lr.OBP0 = m.bus.Read(0xFF48)
		lr.OBP1 = m.bus.Read(0xFF49)
		lr.WY = m.bus.Read(0xFF4A)
		lr.WX = m.bus.Read(0xFF4B)
	}
	return lr
}

// --- DMG background renderer ---
func (m *Machine) renderBG() {
	if m.bus == nil {
		return
	}
	// Optional fast path using fetcher/FIFO per-scanline renderer for BG layer
	if m.cfg.UseFetcherBG {
		for y := 0; y < 144; y++ {
			lr := m.lineRegsOrLive(y)
			if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 {
				for x := 0; x < 160; x++ {
					i := (y*m.w + x) * 4
					m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = 0xFF, 0xFF, 0xFF, 0xFF
					m.bgci[y*m.w+x] = 0
				}
				continue
			}
			bgMapBase := uint16(0x9800)
			if (lr.LCDC & 0x08) != 0 {
				bgMapBase = 0x9C00
			}
			tileData8000 := (lr.LCDC & 0x10) != 0
			vr := vramReaderAdapter{ppu: m.bus.PPU()}
			line := ppu.RenderBGScanlineUsingFetcher(vr, bgMapBase, tileData8000, lr.SCX, lr.SCY, byte(y))
			for x := 0; x < 160; x++ {
				ci := line[x]
				s := shadeDMG(lr.BGP, ci)
				i := (y*m.w + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = s, s, s, 0xFF
				m.bgci[y*m.w+x] = ci
			}
		}
		return
	}
	// We render using per-scanline snapshots captured by the PPU at mode-3 start.
	for y := 0; y < 144; y++ {
		lr := m.lineRegsOrLive(y)
		// If LCD off or BG disabled for this line per snapshot, paint the line white and clear bgci
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 {
			for x := 0; x < 160; x++ {
				i := (y*m.w + x) * 4
				m.fb[i+0] = 0xFF
				m.fb[i+1] = 0xFF
				m.fb[i+2] = 0xFF
				m.fb[i+3] = 0xFF
				m.bgci[y*m.w+x] = 0
			}
			continue
		}
		// Compute BG source using snapshot regs for tilemap/tiledata to keep stable per-line behavior
		bgMapBase := uint16(0x9800)
		if (lr.LCDC & 0x08) != 0 {
			bgMapBase = 0x9C00
		}
		tileData8000 := (lr.LCDC & 0x10) != 0
		bgy := byte((uint16(lr.SCY) + uint16(y)) & 0xFF)
		tileRow := uint16(bgy/8) * 32
		fineY := bgy % 8
		for x := 0; x < 160; x++ {
			bgx := byte((uint16(lr.SCX) + uint16(x)) & 0xFF)
			tileCol := uint16(bgx / 8)
			tileIndexAddr := bgMapBase + tileRow + tileCol
			tileNum := m.bus.PPU().RawVRAM(tileIndexAddr)
			var tileAddr uint16
			if tileData8000 {
				tileAddr = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
			} else {
				tileAddr = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
			}
			lo := m.bus.PPU().RawVRAM(tileAddr)
			hi := m.bus.PPU().RawVRAM(tileAddr + 1)
			bit := 7 - (bgx % 8)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			s := shadeDMG(lr.BGP, ci)
			i := (y*m.w + x) * 4
			m.fb[i+0] = s
			m.fb[i+1] = s
			m.fb[i+2] = s
			m.fb[i+3] = 0xFF
			m.bgci[y*m.w+x] = ci
		}
	}
}

// vramReaderAdapter adapts the live PPU RawVRAM to the ppu.VRAMReader interface used by the fetcher.
type vramReaderAdapter struct{ ppu *ppu.PPU }

func (a vramReaderAdapter) Read(addr uint16) byte { return a.ppu.RawVRAM(addr) }

func (m *Machine) renderWindow() {
	if m.bus == nil {
		return
	}
	// Optional fetcher-based window rendering
	if m.cfg.UseFetcherBG {
		for y := 0; y < 144; y++ {
			lr := m.lineRegsOrLive(y)
			if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 || (lr.LCDC&0x20) == 0 {
				continue
			}
			if y < int(lr.WY) || int(lr.WY) >= 144 {
				continue
			}
			winXStart := int(lr.WX) - 7
			if winXStart >= 160 {
				continue
			}
			winMapBase := uint16(0x9800)
			if (lr.LCDC & 0x40) != 0 {
				winMapBase = 0x9C00
			}
			tileData8000 := (lr.LCDC & 0x10) != 0
			vr := vramReaderAdapter{ppu: m.bus.PPU()}
			line := ppu.RenderWindowScanlineUsingFetcher(vr, winMapBase, tileData8000, winXStart, lr.WinLine)
			for x := max(0, winXStart); x < 160; x++ {
				ci := line[x]
				s := shadeDMG(lr.BGP, ci)
				i := (y*m.w + x) * 4
				m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = s, s, s, 0xFF
				m.bgci[y*m.w+x] = ci
			}
		}
		return
	}
	// Render per-line using snapshots; do not early-return based on live regs to preserve mid-frame changes
	for y := 0; y < 144; y++ {
		lr := m.lineRegsOrLive(y)
		// Window is only considered if LCD on, BG enabled (DMG), and Window enabled for this line
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 || (lr.LCDC&0x20) == 0 {
			continue
		}
		// Enforce window appears only when current line has reached WY
		if y < int(lr.WY) || int(lr.WY) >= 144 {
			continue
		}
		// Compute per-line window X start from snapshot (WX-7)
		winXStart := int(lr.WX) - 7
		if winXStart >= 160 {
			continue
		}
		// Tile selection uses per-line snapshot LCDC for stable behavior
		winMapBase := uint16(0x9800)
		if (lr.LCDC & 0x40) != 0 {
			winMapBase = 0x9C00
		}
		tileData8000 := (lr.LCDC & 0x10) != 0
		// Use the PPU's internal window line counter for Y within the window
		winY := lr.WinLine
		tileRow := uint16(winY/8) * 32
		fineY := winY % 8
		for x := max(0, winXStart); x < 160; x++ {
			winX := byte(x - winXStart)
			tileCol := uint16(winX / 8)
			tileIndexAddr := winMapBase + tileRow + tileCol
			tileNum := m.bus.PPU().RawVRAM(tileIndexAddr)
			var tileAddr uint16
			if tileData8000 {
				tileAddr = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
			} else {
				tileAddr = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
			}
			lo := m.bus.PPU().RawVRAM(tileAddr)
			hi := m.bus.PPU().RawVRAM(tileAddr + 1)
			bit := 7 - (winX % 8)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			s := shadeDMG(lr.BGP, ci)
			i := (y*m.w + x) * 4
			m.fb[i+0] = s
			m.fb[i+1] = s
			m.fb[i+2] = s
			m.fb[i+3] = 0xFF
			m.bgci[y*m.w+x] = ci
		}
	}
}

// collectLineSprites gathers up to 10 sprites covering line y in OAM order.
func (m *Machine) collectLineSprites(y int, sprite16 bool) []ppu.Sprite {
	height := 8
	if sprite16 {
		height = 16
	}
	sprites := make([]ppu.Sprite, 0, 10)
	for i := 0; i < 40 && len(sprites) < 10; i++ {
		base := uint16(0xFE00 + i*4)
		sy := int(m.bus.PPU().RawOAM(base)) - 16
		sx := int(m.bus.PPU().RawOAM(base+1)) - 8
		tile := m.bus.PPU().RawOAM(base + 2)
		attr := m.bus.PPU().RawOAM(base + 3)
		if sy <= y && y < sy+height {
			sprites = append(sprites, ppu.Sprite{X: sx, Y: sy, Tile: tile, Attr: attr, OAMIndex: i})
		}
	}
	return sprites
}

// Sprite rendering with 8x8 and 8x16 support. Honors OBP0/OBP1 and BG priority via bgci.
func (m *Machine) renderSprites() {
	if m.bus == nil {
		return
	}
	for y := 0; y < 144; y++ {
		lr := m.lineRegsOrLive(y)
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x02) == 0 {
			continue
		}
		sprite16 := (lr.LCDC & 0x04) != 0
		sprites := m.collectLineSprites(y, sprite16)
		if len(sprites) == 0 {
			continue
		}
		// Compose sprite pixels over this line with per-pixel palette selection
		var bgciLine [160]byte
		copy(bgciLine[:], m.bgci[y*m.w:(y+1)*m.w])
		vr := vramReaderAdapter{ppu: m.bus.PPU()}
		sline, palSel := ppu.ComposeSpriteLineExt(vr, sprites, y, bgciLine, sprite16)
		for x := 0; x < 160; x++ {
			ci := sline[x]
			if ci == 0 {
				continue
			}
			pal := lr.OBP0
			if palSel[x] == 1 {
				pal = lr.OBP1
			}
			gray := shadeDMG(pal, ci)
			i := (y*m.w + x) * 4
			m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = gray, gray, gray, 0xFF
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
