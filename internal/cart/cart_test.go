package cart

import (
	"errors"
	"testing"
)

func TestLoad_SelectsMapper(t *testing.T) {
	cases := []struct {
		cartType byte
		want     string
	}{
		{0x00, "*cart.ROMOnly"},
		{0x03, "*cart.MBC1"},
		{0x06, "*cart.MBC2"},
		{0x13, "*cart.MBC3"},
		{0x1B, "*cart.MBC5"},
	}
	for _, tc := range cases {
		rom := buildROM("LOAD", tc.cartType, 0x01, 0x02, 64*1024)
		c, h, err := Load(rom)
		if err != nil {
			t.Fatalf("type %#02x: Load error: %v", tc.cartType, err)
		}
		if h.CartType != tc.cartType {
			t.Fatalf("type %#02x: header type %#02x", tc.cartType, h.CartType)
		}
		var got string
		switch c.(type) {
		case *ROMOnly:
			got = "*cart.ROMOnly"
		case *MBC1:
			got = "*cart.MBC1"
		case *MBC2:
			got = "*cart.MBC2"
		case *MBC3:
			got = "*cart.MBC3"
		case *MBC5:
			got = "*cart.MBC5"
		}
		if got != tc.want {
			t.Fatalf("type %#02x: got %s want %s", tc.cartType, got, tc.want)
		}
	}
}

func TestLoad_BadChecksum(t *testing.T) {
	rom := buildROM("BAD", 0x00, 0x00, 0x00, 32*1024)
	rom[0x0134] ^= 0xFF
	_, _, err := Load(rom)
	if !errors.Is(err, ErrHeader) {
		t.Fatalf("Load error = %v, want ErrHeader", err)
	}
}

func TestLoad_TruncatedROM(t *testing.T) {
	_, _, err := Load(make([]byte, 0x100))
	if !errors.Is(err, ErrHeader) {
		t.Fatalf("Load error = %v, want ErrHeader", err)
	}
}

func TestLoad_UnsupportedMapper(t *testing.T) {
	rom := buildROM("HUC", 0xFE, 0x00, 0x00, 32*1024) // HuC3
	_, _, err := Load(rom)
	if !errors.Is(err, ErrUnsupportedMBC) {
		t.Fatalf("Load error = %v, want ErrUnsupportedMBC", err)
	}
}

func TestNewCartridge_LenientFallback(t *testing.T) {
	// no header checksum, unknown type byte: still runs as ROM-only
	rom := make([]byte, 32*1024)
	rom[0x0147] = 0xFE
	rom[0x0042] = 0x99
	c := NewCartridge(rom)
	if got := c.Read(0x0042); got != 0x99 {
		t.Fatalf("fallback read got %02X want 99", got)
	}
}

func TestBattery_DirtyOnlyOnRAMWrite(t *testing.T) {
	rom := buildROM("SAV", 0x03, 0x01, 0x02, 64*1024) // MBC1+RAM+BATTERY
	c, _, err := Load(rom)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, ok := c.(BatteryBacked)
	if !ok {
		t.Fatalf("MBC1 does not implement BatteryBacked")
	}
	if b.Dirty() {
		t.Fatalf("dirty before any write")
	}

	// control writes are not RAM writes
	c.Write(0x2000, 0x02)
	if b.Dirty() {
		t.Fatalf("dirty after bank select")
	}

	// writes while RAM is disabled don't land
	c.Write(0xA000, 0x11)
	if b.Dirty() {
		t.Fatalf("dirty after write with RAM disabled")
	}

	c.Write(0x0000, 0x0A)
	c.Write(0xA000, 0x11)
	if !b.Dirty() {
		t.Fatalf("not dirty after RAM write")
	}
	b.ClearDirty()
	if b.Dirty() {
		t.Fatalf("ClearDirty did not clear")
	}

	saved := b.SaveRAM()
	if saved[0] != 0x11 {
		t.Fatalf("SaveRAM[0] got %02X want 11", saved[0])
	}
}

func TestMBC5_NineBitBanking(t *testing.T) {
	rom := make([]byte, 8*1024*1024)
	for bank := 0; bank < 512; bank++ {
		rom[bank*0x4000] = byte(bank)
		rom[bank*0x4000+1] = byte(bank >> 8)
	}
	m := NewMBC5(rom, 0)

	m.Write(0x2000, 0x34)
	m.Write(0x3000, 0x01)
	if lo, hi := m.Read(0x4000), m.Read(0x4001); lo != 0x34 || hi != 0x01 {
		t.Fatalf("bank 0x134 read got %02X%02X", hi, lo)
	}

	// unlike MBC1, bank 0 is selectable
	m.Write(0x3000, 0x00)
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x00 {
		t.Fatalf("bank0 select got %02X want 00", got)
	}
}

func TestBankSelect_WrapsToROMSize(t *testing.T) {
	// 4-bank image; selecting bank 9 must wrap to bank 1
	rom := make([]byte, 64*1024)
	for bank := 0; bank < 4; bank++ {
		rom[bank*0x4000] = byte(0xA0 + bank)
	}
	m := NewMBC1(rom, 0)
	m.Write(0x2000, 0x09)
	if got := m.Read(0x4000); got != 0xA1 {
		t.Fatalf("wrapped bank read got %02X want A1", got)
	}
}
