package apu

import (
	"bytes"
	"encoding/gob"
)

// CPU frequency in Hz (DMG)
const cpuHz = 4194304

const frameSeqPeriod = cpuHz / 512

// APU is the DMG audio unit: two square channels (sweep on channel 1),
// the wave channel, and the noise channel, clocked by the shared frame
// sequencer. Output is stereo int16 frames in a ring buffer, routed per
// NR50/NR51, at the requested sample rate.
type APU struct {
	enabled bool

	sampleRate      int
	cyclesPerSample float64
	cycAccum        float64
	mixGain         float64

	// frame sequencer (512 Hz)
	fsCounter int
	fsStep    int

	// stereo ring buffer, power-of-two capacity
	sL    []int16
	sR    []int16
	sHead int
	sTail int

	nr50 byte // 0xFF24 master volume / Vin
	nr51 byte // 0xFF25 routing
	nr52 byte // 0xFF26 power / channel status

	ch1 squareChannel // NR10..NR14, with sweep
	ch2 squareChannel // NR21..NR24
	ch3 waveChannel   // NR30..NR34 + wave RAM
	ch4 noiseChannel  // NR41..NR44
}

type squareChannel struct {
	enabled bool
	duty    byte // 0..3
	length  int  // 0..63
	lenEn   bool
	freq    uint16
	timer   int
	phase   int // 0..7 index into duty pattern
	env     envelope

	// sweep (channel 1 only)
	sweepPer    byte
	sweepNeg    bool
	sweepShift  byte
	sweepTmr    byte
	sweepEn     bool
	sweepShadow uint16
}

type waveChannel struct {
	enabled bool
	dacEn   bool
	length  int // 0..255
	lenEn   bool
	volCode byte // 0: mute, 1: 100%, 2: 50%, 3: 25%
	freq    uint16
	timer   int
	pos     int      // 0..31
	ram     [16]byte // FF30..FF3F, two 4-bit samples per byte
}

type noiseChannel struct {
	enabled bool
	length  int
	lenEn   bool
	env     envelope
	shift   byte // NR43 bits 4-7
	width7  bool // 7-bit LFSR when set
	divSel  byte // NR43 bits 0-2
	timer   int
	lfsr    uint16
}

// envelope is the shared volume envelope of the square and noise channels.
type envelope struct {
	vol    byte // initial volume 0..15
	dir    int8 // +1 or -1
	per    byte // 0..7 (0 treated as 8 on trigger)
	curVol byte
	tmr    byte
}

func (e *envelope) writeReg(v byte) {
	e.vol = (v >> 4) & 0x0F
	if v&(1<<3) != 0 {
		e.dir = 1
	} else {
		e.dir = -1
	}
	e.per = v & 7
}

func (e *envelope) readReg() byte {
	dir := byte(0)
	if e.dir > 0 {
		dir = 1
	}
	return e.vol<<4 | dir<<3 | e.per&7
}

// dacOff reports whether the register value leaves the DAC unpowered
// (upper 5 bits zero), which forces the channel off.
func (e *envelope) dacOff() bool { return e.vol == 0 && e.dir < 0 }

func (e *envelope) trigger() {
	e.curVol = e.vol
	per := e.per
	if per == 0 {
		per = 8
	}
	e.tmr = per
}

func (e *envelope) clock() {
	if e.per == 0 {
		return
	}
	if e.tmr > 0 {
		e.tmr--
	}
	if e.tmr == 0 {
		e.tmr = e.per
		if e.dir > 0 && e.curVol < 15 {
			e.curVol++
		} else if e.dir < 0 && e.curVol > 0 {
			e.curVol--
		}
	}
}

var dutyTable = [4][8]byte{
	// 12.5%, 25%, 50%, 75% duty patterns
	{0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 0},
}

func New(sampleRate int) *APU {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	a := &APU{
		enabled:         true,
		sampleRate:      sampleRate,
		cyclesPerSample: float64(cpuHz) / float64(sampleRate),
		mixGain:         0.20,
		fsCounter:       frameSeqPeriod,
		sL:              make([]int16, 16384),
		sR:              make([]int16, 16384),
	}
	// route everything to both speakers until games set up mixing
	a.nr50 = 0x77
	a.nr51 = 0xFF
	return a
}

// --- square channel helpers ---

func (c *squareChannel) reloadTimer() {
	period := int(4 * (2048 - c.freq&0x7FF))
	if period < 8 {
		period = 8
	}
	c.timer = period
}

func (c *squareChannel) tickTimer() {
	if !c.enabled {
		return
	}
	c.timer--
	if c.timer <= 0 {
		c.reloadTimer()
		c.phase = (c.phase + 1) & 7
	}
}

func (c *squareChannel) clockLength() {
	if c.lenEn && c.length > 0 {
		c.length--
		if c.length <= 0 {
			c.enabled = false
		}
	}
}

// output returns the channel contribution in [-1, +1].
func (c *squareChannel) output() float64 {
	if !c.enabled {
		return 0
	}
	amp := float64(c.env.curVol) / 15.0
	if dutyTable[c.duty][c.phase] != 0 {
		return amp
	}
	return -amp
}

func (c *squareChannel) trigger(withSweep bool) {
	c.enabled = !c.env.dacOff()
	if c.length == 0 {
		c.length = 64
	}
	c.phase = 0
	c.reloadTimer()
	c.env.trigger()
	if !withSweep {
		return
	}
	c.sweepShadow = c.freq & 0x7FF
	c.sweepEn = c.sweepPer != 0 || c.sweepShift != 0
	st := c.sweepPer
	if st == 0 {
		st = 8
	}
	c.sweepTmr = st
	if c.sweepShift != 0 && c.sweepCalc() > 2047 {
		c.enabled = false
	}
}

func (c *squareChannel) sweepCalc() int {
	base := int(c.sweepShadow)
	if c.sweepShift == 0 {
		return base
	}
	delta := base >> c.sweepShift
	if c.sweepNeg {
		return base - delta
	}
	return base + delta
}

func (c *squareChannel) clockSweep() {
	if !c.enabled || !c.sweepEn || c.sweepPer == 0 {
		return
	}
	if c.sweepTmr > 0 {
		c.sweepTmr--
	}
	if c.sweepTmr != 0 {
		return
	}
	c.sweepTmr = c.sweepPer
	nf := c.sweepCalc()
	if nf > 2047 {
		c.enabled = false
		return
	}
	c.sweepShadow = uint16(nf)
	c.freq = c.freq&^0x07FF | uint16(nf)&0x07FF
	c.reloadTimer()
	if c.sweepCalc() > 2047 {
		c.enabled = false
	}
}

// --- wave channel helpers ---

func (c *waveChannel) reloadTimer() {
	period := int(2 * (2048 - c.freq&0x7FF))
	if period < 2 {
		period = 2
	}
	c.timer = period
}

func (c *waveChannel) tickTimer() {
	if !c.enabled {
		return
	}
	c.timer--
	if c.timer <= 0 {
		c.reloadTimer()
		c.pos = (c.pos + 1) & 31
	}
}

func (c *waveChannel) clockLength() {
	if c.lenEn && c.length > 0 {
		c.length--
		if c.length <= 0 {
			c.enabled = false
		}
	}
}

func (c *waveChannel) trigger() {
	c.enabled = c.dacEn
	if c.length == 0 {
		c.length = 256
	}
	c.pos = 0
	c.reloadTimer()
}

func (c *waveChannel) output() float64 {
	if !c.enabled || !c.dacEn || c.volCode == 0 {
		return 0
	}
	b := c.ram[c.pos>>1]
	var n4 byte
	if c.pos&1 == 0 {
		n4 = b >> 4 & 0x0F
	} else {
		n4 = b & 0x0F
	}
	shift := c.volCode - 1
	peak := byte(15) >> shift
	if peak == 0 {
		peak = 1
	}
	return (float64(n4>>shift)/float64(peak))*2.0 - 1.0
}

// --- noise channel helpers ---

var noiseDivTable = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

func (c *noiseChannel) reloadTimer() {
	period := noiseDivTable[c.divSel&7] << (int(c.shift) + 4)
	if period < 2 {
		period = 2
	}
	c.timer = period
}

func (c *noiseChannel) tickTimer() {
	if !c.enabled {
		return
	}
	c.timer--
	if c.timer > 0 {
		return
	}
	c.reloadTimer()
	x := (c.lfsr ^ c.lfsr>>1) & 1
	c.lfsr >>= 1
	c.lfsr |= x << 14
	if c.width7 {
		c.lfsr &^= 1 << 6
		c.lfsr |= x << 6
	}
}

func (c *noiseChannel) clockLength() {
	if c.lenEn && c.length > 0 {
		c.length--
		if c.length <= 0 {
			c.enabled = false
		}
	}
}

func (c *noiseChannel) trigger() {
	c.enabled = !c.env.dacOff()
	if c.length == 0 {
		c.length = 64
	}
	c.env.trigger()
	c.lfsr = 0x7FFF
	c.reloadTimer()
}

func (c *noiseChannel) output() float64 {
	if !c.enabled {
		return 0
	}
	amp := float64(c.env.curVol) / 15.0
	if ^c.lfsr&1 != 0 {
		return amp
	}
	return -amp
}

// CPURead reads an APU register.
func (a *APU) CPURead(addr uint16) byte {
	switch addr {
	case 0xFF10: // NR10 sweep
		n := a.ch1.sweepPer & 7 << 4
		if a.ch1.sweepNeg {
			n |= 1 << 3
		}
		n |= a.ch1.sweepShift & 7
		return 0x80 | n
	case 0xFF11: // NR11 duty/length
		return a.ch1.duty<<6 | byte(0x3F-a.ch1.length&0x3F)
	case 0xFF12: // NR12 envelope
		return a.ch1.env.readReg()
	case 0xFF13: // NR13 freq lo
		return byte(a.ch1.freq)
	case 0xFF14: // NR14
		return boolToByte(a.ch1.lenEn)<<6 | byte(a.ch1.freq>>8&7)
	case 0xFF16: // NR21 duty/length
		return a.ch2.duty<<6 | byte(0x3F-a.ch2.length&0x3F)
	case 0xFF17: // NR22 envelope
		return a.ch2.env.readReg()
	case 0xFF18: // NR23 freq lo
		return byte(a.ch2.freq)
	case 0xFF19: // NR24
		return boolToByte(a.ch2.lenEn)<<6 | byte(a.ch2.freq>>8&7)
	case 0xFF1A: // NR30 DAC
		if a.ch3.dacEn {
			return 0x80
		}
		return 0x00
	case 0xFF1B: // NR31 length
		return byte(0xFF - a.ch3.length&0xFF)
	case 0xFF1C: // NR32 volume
		return a.ch3.volCode<<5 | 0x9F
	case 0xFF1D: // NR33 freq lo
		return byte(a.ch3.freq)
	case 0xFF1E: // NR34
		return boolToByte(a.ch3.lenEn)<<6 | byte(a.ch3.freq>>8&7)
	case 0xFF20: // NR41 length
		return byte(0x3F - a.ch4.length&0x3F)
	case 0xFF21: // NR42 envelope
		return a.ch4.env.readReg()
	case 0xFF22: // NR43 polynomial
		w := byte(0)
		if a.ch4.width7 {
			w = 1
		}
		return a.ch4.shift<<4 | w<<3 | a.ch4.divSel&7
	case 0xFF23: // NR44
		return boolToByte(a.ch4.lenEn) << 6
	case 0xFF24:
		return a.nr50
	case 0xFF25:
		return a.nr51
	case 0xFF26:
		flags := byte(0)
		if a.ch1.enabled {
			flags |= 1 << 0
		}
		if a.ch2.enabled {
			flags |= 1 << 1
		}
		if a.ch3.enabled {
			flags |= 1 << 2
		}
		if a.ch4.enabled {
			flags |= 1 << 3
		}
		return 0x70 | boolToByte(a.enabled)<<7 | flags
	}
	if addr >= 0xFF30 && addr <= 0xFF3F {
		return a.ch3.ram[addr-0xFF30]
	}
	return 0xFF
}

// CPUWrite writes an APU register.
func (a *APU) CPUWrite(addr uint16, v byte) {
	switch addr {
	case 0xFF10: // NR10
		a.ch1.sweepPer = v >> 4 & 7
		a.ch1.sweepNeg = v&(1<<3) != 0
		a.ch1.sweepShift = v & 7
	case 0xFF11: // NR11
		a.ch1.duty = v >> 6 & 3
		a.ch1.length = 64 - int(v&0x3F)
	case 0xFF12: // NR12
		a.ch1.env.writeReg(v)
		if v&0xF8 == 0 {
			a.ch1.enabled = false
		}
	case 0xFF13: // NR13
		a.ch1.freq = a.ch1.freq&0x0700 | uint16(v)
		a.ch1.reloadTimer()
	case 0xFF14: // NR14
		a.ch1.lenEn = v&(1<<6) != 0
		a.ch1.freq = a.ch1.freq&0x00FF | uint16(v&7)<<8
		if v&(1<<7) != 0 {
			a.ch1.trigger(true)
		}
	case 0xFF16: // NR21
		a.ch2.duty = v >> 6 & 3
		a.ch2.length = 64 - int(v&0x3F)
	case 0xFF17: // NR22
		a.ch2.env.writeReg(v)
		if v&0xF8 == 0 {
			a.ch2.enabled = false
		}
	case 0xFF18: // NR23
		a.ch2.freq = a.ch2.freq&0x0700 | uint16(v)
		a.ch2.reloadTimer()
	case 0xFF19: // NR24
		a.ch2.lenEn = v&(1<<6) != 0
		a.ch2.freq = a.ch2.freq&0x00FF | uint16(v&7)<<8
		if v&(1<<7) != 0 {
			a.ch2.trigger(false)
		}
	case 0xFF1A: // NR30
		a.ch3.dacEn = v&0x80 != 0
		if !a.ch3.dacEn {
			a.ch3.enabled = false
		}
	case 0xFF1B: // NR31
		a.ch3.length = 256 - int(v)
	case 0xFF1C: // NR32
		a.ch3.volCode = v >> 5 & 3
	case 0xFF1D: // NR33
		a.ch3.freq = a.ch3.freq&0x0700 | uint16(v)
		a.ch3.reloadTimer()
	case 0xFF1E: // NR34
		a.ch3.lenEn = v&(1<<6) != 0
		a.ch3.freq = a.ch3.freq&0x00FF | uint16(v&7)<<8
		if v&(1<<7) != 0 {
			a.ch3.trigger()
		}
	case 0xFF20: // NR41
		a.ch4.length = 64 - int(v&0x3F)
	case 0xFF21: // NR42
		a.ch4.env.writeReg(v)
		if v&0xF8 == 0 {
			a.ch4.enabled = false
		}
	case 0xFF22: // NR43
		a.ch4.shift = v >> 4 & 0x0F
		a.ch4.width7 = v&(1<<3) != 0
		a.ch4.divSel = v & 7
		a.ch4.reloadTimer()
	case 0xFF23: // NR44
		a.ch4.lenEn = v&(1<<6) != 0
		if v&(1<<7) != 0 {
			a.ch4.trigger()
		}
	case 0xFF24:
		a.nr50 = v
	case 0xFF25:
		a.nr51 = v
	case 0xFF26:
		if v&(1<<7) == 0 {
			// power off clears all channel and register state
			*a = *New(a.sampleRate)
			a.enabled = false
		} else {
			a.enabled = true
		}
	default:
		if addr >= 0xFF30 && addr <= 0xFF3F {
			a.ch3.ram[addr-0xFF30] = v
		}
	}
}

// Tick advances the APU by the given number of CPU cycles and pushes
// PCM frames into the stereo buffer when a sample period elapses.
func (a *APU) Tick(cycles int) {
	if cycles <= 0 || !a.enabled {
		return
	}
	for i := 0; i < cycles; i++ {
		a.fsCounter--
		if a.fsCounter <= 0 {
			a.fsCounter += frameSeqPeriod
			a.fsStep = (a.fsStep + 1) & 7
			if a.fsStep%2 == 0 {
				a.ch1.clockLength()
				a.ch2.clockLength()
				a.ch3.clockLength()
				a.ch4.clockLength()
			}
			if a.fsStep == 2 || a.fsStep == 6 {
				a.ch1.clockSweep()
			}
			if a.fsStep == 7 {
				if a.ch1.enabled {
					a.ch1.env.clock()
				}
				if a.ch2.enabled {
					a.ch2.env.clock()
				}
				if a.ch4.enabled {
					a.ch4.env.clock()
				}
			}
		}

		a.ch1.tickTimer()
		a.ch2.tickTimer()
		a.ch3.tickTimer()
		a.ch4.tickTimer()

		a.cycAccum++
		for a.cycAccum >= a.cyclesPerSample {
			a.cycAccum -= a.cyclesPerSample
			l, r := a.mixStereo()
			a.pushStereo(l, r)
		}
	}
}

// mixStereo computes one stereo frame according to NR50/NR51.
func (a *APU) mixStereo() (int16, int16) {
	c1 := a.ch1.output()
	c2 := a.ch2.output()
	c3 := a.ch3.output()
	c4 := a.ch4.output()

	// NR51: lower nibble routes to right (SO1), upper to left (SO2).
	rMask := a.nr51 & 0x0F
	lMask := a.nr51 >> 4 & 0x0F
	if rMask == 0 && lMask == 0 {
		// some titles leave NR51=0 briefly; route all to both
		rMask, lMask = 0x0F, 0x0F
	}
	var l, r float64
	for ch, v := range [4]float64{c1, c2, c3, c4} {
		bit := byte(1) << ch
		if lMask&bit != 0 {
			l += v
		}
		if rMask&bit != 0 {
			r += v
		}
	}
	// NR50 master volumes: right bits 0-2, left bits 4-6
	l *= float64(a.nr50>>4&0x07) / 7.0 * a.mixGain
	r *= float64(a.nr50&0x07) / 7.0 * a.mixGain
	return clamp16(l), clamp16(r)
}

func clamp16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

func (a *APU) pushStereo(l, r int16) {
	next := (a.sHead + 1) & (len(a.sL) - 1)
	if next == a.sTail {
		return // drop when full
	}
	a.sL[a.sHead] = l
	a.sR[a.sHead] = r
	a.sHead = next
}

// PullStereo returns up to max stereo frames as interleaved int16 [L0,R0,L1,R1,...].
func (a *APU) PullStereo(max int) []int16 {
	n := a.StereoAvailable()
	if max < n {
		n = max
	}
	if n <= 0 {
		return nil
	}
	out := make([]int16, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, a.sL[a.sTail], a.sR[a.sTail])
		a.sTail = (a.sTail + 1) & (len(a.sL) - 1)
	}
	return out
}

// PullSamples returns up to max mono samples, averaging the stereo frames.
func (a *APU) PullSamples(max int) []int16 {
	st := a.PullStereo(max)
	if len(st) == 0 {
		return nil
	}
	out := make([]int16, 0, len(st)/2)
	for i := 0; i < len(st); i += 2 {
		out = append(out, int16((int32(st[i])+int32(st[i+1]))/2))
	}
	return out
}

// StereoAvailable returns the number of stereo frames currently buffered.
func (a *APU) StereoAvailable() int {
	if a.sHead >= a.sTail {
		return a.sHead - a.sTail
	}
	return len(a.sL) - a.sTail + a.sHead
}

// TrimStereoTo drops the oldest frames until at most target remain.
func (a *APU) TrimStereoTo(target int) {
	if target < 0 {
		target = 0
	}
	for a.StereoAvailable() > target {
		a.sTail = (a.sTail + 1) & (len(a.sL) - 1)
	}
}

// ClearStereoBuffer drops all buffered frames to re-sync audio with video.
func (a *APU) ClearStereoBuffer() {
	a.sHead, a.sTail = 0, 0
}

// --- Save/Load state ---

type squareState struct {
	Enabled     bool
	Duty        byte
	Length      int
	LenEn       bool
	Freq        uint16
	Timer       int
	Phase       int
	Env         envState
	SweepPer    byte
	SweepNeg    bool
	SweepShift  byte
	SweepTmr    byte
	SweepEn     bool
	SweepShadow uint16
}

type waveState struct {
	Enabled bool
	DAC     bool
	Length  int
	LenEn   bool
	VolCode byte
	Freq    uint16
	Timer   int
	Pos     int
	RAM     [16]byte
}

type noiseState struct {
	Enabled bool
	Length  int
	LenEn   bool
	Env     envState
	Shift   byte
	Width7  bool
	DivSel  byte
	Timer   int
	LFSR    uint16
}

type envState struct {
	Vol    byte
	Dir    int8
	Per    byte
	CurVol byte
	Tmr    byte
}

type apuState struct {
	Enabled          bool
	NR50, NR51, NR52 byte
	FSctr, FSstep    int
	CycAccum         float64
	Ch1, Ch2         squareState
	Ch3              waveState
	Ch4              noiseState
}

func saveEnv(e envelope) envState {
	return envState{Vol: e.vol, Dir: e.dir, Per: e.per, CurVol: e.curVol, Tmr: e.tmr}
}

func loadEnv(s envState) envelope {
	return envelope{vol: s.Vol, dir: s.Dir, per: s.Per, curVol: s.CurVol, tmr: s.Tmr}
}

func saveSquare(c squareChannel) squareState {
	return squareState{
		Enabled: c.enabled, Duty: c.duty, Length: c.length, LenEn: c.lenEn,
		Freq: c.freq, Timer: c.timer, Phase: c.phase, Env: saveEnv(c.env),
		SweepPer: c.sweepPer, SweepNeg: c.sweepNeg, SweepShift: c.sweepShift,
		SweepTmr: c.sweepTmr, SweepEn: c.sweepEn, SweepShadow: c.sweepShadow,
	}
}

func loadSquare(s squareState) squareChannel {
	return squareChannel{
		enabled: s.Enabled, duty: s.Duty, length: s.Length, lenEn: s.LenEn,
		freq: s.Freq, timer: s.Timer, phase: s.Phase, env: loadEnv(s.Env),
		sweepPer: s.SweepPer, sweepNeg: s.SweepNeg, sweepShift: s.SweepShift,
		sweepTmr: s.SweepTmr, sweepEn: s.SweepEn, sweepShadow: s.SweepShadow,
	}
}

func (a *APU) SaveState() []byte {
	var buf bytes.Buffer
	s := apuState{
		Enabled: a.enabled,
		NR50:    a.nr50, NR51: a.nr51, NR52: a.nr52,
		FSctr: a.fsCounter, FSstep: a.fsStep, CycAccum: a.cycAccum,
		Ch1: saveSquare(a.ch1), Ch2: saveSquare(a.ch2),
		Ch3: waveState{
			Enabled: a.ch3.enabled, DAC: a.ch3.dacEn, Length: a.ch3.length, LenEn: a.ch3.lenEn,
			VolCode: a.ch3.volCode, Freq: a.ch3.freq, Timer: a.ch3.timer, Pos: a.ch3.pos, RAM: a.ch3.ram,
		},
		Ch4: noiseState{
			Enabled: a.ch4.enabled, Length: a.ch4.length, LenEn: a.ch4.lenEn, Env: saveEnv(a.ch4.env),
			Shift: a.ch4.shift, Width7: a.ch4.width7, DivSel: a.ch4.divSel,
			Timer: a.ch4.timer, LFSR: a.ch4.lfsr,
		},
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (a *APU) LoadState(data []byte) {
	var s apuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	a.enabled = s.Enabled
	a.nr50, a.nr51, a.nr52 = s.NR50, s.NR51, s.NR52
	a.fsCounter, a.fsStep, a.cycAccum = s.FSctr, s.FSstep, s.CycAccum
	a.ch1 = loadSquare(s.Ch1)
	a.ch2 = loadSquare(s.Ch2)
	a.ch3 = waveChannel{
		enabled: s.Ch3.Enabled, dacEn: s.Ch3.DAC, length: s.Ch3.Length, lenEn: s.Ch3.LenEn,
		volCode: s.Ch3.VolCode, freq: s.Ch3.Freq, timer: s.Ch3.Timer, pos: s.Ch3.Pos, ram: s.Ch3.RAM,
	}
	a.ch4 = noiseChannel{
		enabled: s.Ch4.Enabled, length: s.Ch4.Length, lenEn: s.Ch4.LenEn, env: loadEnv(s.Ch4.Env),
		shift: s.Ch4.Shift, width7: s.Ch4.Width7, divSel: s.Ch4.DivSel,
		timer: s.Ch4.Timer, lfsr: s.Ch4.LFSR,
	}
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
