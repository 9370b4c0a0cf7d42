package apu

import "testing"

func TestAPU_TriggerSetsStatusBit(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0) // full volume, DAC on
	a.CPUWrite(0xFF14, 0x80) // trigger ch1
	if a.CPURead(0xFF26)&0x01 == 0 {
		t.Fatal("NR52 bit0 clear after channel 1 trigger")
	}
}

func TestAPU_DACOffDisablesChannel(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)
	a.CPUWrite(0xFF12, 0x00) // DAC off
	if a.CPURead(0xFF26)&0x01 != 0 {
		t.Fatal("channel 1 still enabled with DAC off")
	}
}

func TestAPU_LengthCounterExpiry(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF11, 0x3F)        // length = 1
	a.CPUWrite(0xFF14, 0x80|0x40)   // trigger with length enable
	if a.CPURead(0xFF26)&0x01 == 0 {
		t.Fatal("channel 1 not running after trigger")
	}
	// Length clocks on even frame sequencer steps; the first even step
	// after reset is step 2.
	a.Tick(2 * frameSeqPeriod)
	if a.CPURead(0xFF26)&0x01 != 0 {
		t.Fatal("channel 1 still running after length expired")
	}
}

func TestAPU_PowerCycle(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)
	a.CPUWrite(0xFF26, 0x00) // power off
	if got := a.CPURead(0xFF26); got != 0x70 {
		t.Fatalf("NR52 while off got %02X want 70", got)
	}
	a.CPUWrite(0xFF26, 0x80) // power on
	if got := a.CPURead(0xFF26); got != 0xF0 {
		t.Fatalf("NR52 after power-on got %02X want F0 (all channels idle)", got)
	}
}

func TestAPU_SampleCadence(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)
	// 1/100th of a second of CPU time should buffer ~480 frames at 48kHz.
	a.Tick(cpuHz / 100)
	n := a.StereoAvailable()
	if n < 470 || n > 490 {
		t.Fatalf("buffered %d stereo frames, want ~480", n)
	}
}

func TestAPU_PullTrimClear(t *testing.T) {
	a := New(48000)
	a.Tick(cpuHz / 100)
	if a.StereoAvailable() == 0 {
		t.Fatal("no frames buffered")
	}
	st := a.PullStereo(10)
	if len(st) != 20 {
		t.Fatalf("PullStereo(10) returned %d values, want 20 interleaved", len(st))
	}
	a.TrimStereoTo(100)
	if got := a.StereoAvailable(); got != 100 {
		t.Fatalf("after TrimStereoTo(100): %d frames", got)
	}
	a.ClearStereoBuffer()
	if got := a.StereoAvailable(); got != 0 {
		t.Fatalf("after ClearStereoBuffer: %d frames", got)
	}
}

func TestAPU_WaveVolumeShift(t *testing.T) {
	// Each NR32 volume code shifts the 4-bit sample right by code-1;
	// a full-scale sample must map to +1.0 at every audible volume.
	ch := waveChannel{enabled: true, dacEn: true}
	ch.ram[0] = 0xF0 // sample 15 at position 0
	for code := byte(1); code <= 3; code++ {
		ch.volCode = code
		if got := ch.output(); got != 1.0 {
			t.Fatalf("volCode %d: full-scale output got %v want 1.0", code, got)
		}
	}
	ch.volCode = 0
	if got := ch.output(); got != 0 {
		t.Fatalf("volCode 0 should mute, got %v", got)
	}
}

func TestAPU_WaveRAMRoundTrip(t *testing.T) {
	a := New(48000)
	for i := 0; i < 16; i++ {
		a.CPUWrite(uint16(0xFF30+i), byte(0xA0|i))
	}
	for i := 0; i < 16; i++ {
		if got := a.CPURead(uint16(0xFF30 + i)); got != byte(0xA0|i) {
			t.Fatalf("wave RAM[%d] got %02X want %02X", i, got, 0xA0|i)
		}
	}
}

func TestAPU_SaveLoadState(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF24, 0x45)
	a.CPUWrite(0xFF25, 0x12)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)
	snap := a.SaveState()

	b := New(48000)
	b.LoadState(snap)
	if b.CPURead(0xFF24) != 0x45 || b.CPURead(0xFF25) != 0x12 {
		t.Fatalf("NR50/NR51 after restore: %02X %02X", b.CPURead(0xFF24), b.CPURead(0xFF25))
	}
	if b.CPURead(0xFF26)&0x01 == 0 {
		t.Fatal("channel 1 enable bit lost across save/load")
	}
}
