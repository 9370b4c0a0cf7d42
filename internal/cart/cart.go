package cart

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by Load. Callers match them with errors.Is.
var (
	// ErrHeader is returned for ROM images whose header is missing,
	// truncated or fails the 0x0134-0x014C checksum.
	ErrHeader = errors.New("cart: bad header")
	// ErrUnsupportedMBC is returned for mapper types this emulator
	// does not implement.
	ErrUnsupportedMBC = errors.New("cart: unsupported mapper")
)

// Cartridge defines the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000–0x7FFF) and external RAM (0xA000–0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000–0x7FFF) and external RAM writes (0xA000–0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize internal banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is an optional interface for cartridges whose external RAM
// is persisted to a .sav file. SaveRAM returns a copy of the RAM contents
// (plus RTC state for MBC3); Dirty reports whether RAM changed since the
// last ClearDirty, so callers can skip redundant writes to disk.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
	Dirty() bool
	ClearDirty()
}

// Load parses and validates the header, then picks the mapper implementation.
// It fails with ErrHeader for unparseable or checksum-failing images and with
// ErrUnsupportedMBC for mapper types outside ROM-only/MBC1/MBC2/MBC3/MBC5.
func Load(rom []byte) (Cartridge, *Header, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrHeader, err)
	}
	if !HeaderChecksumOK(rom) {
		return nil, nil, fmt.Errorf("%w: header checksum mismatch", ErrHeader)
	}
	c, err := newForType(rom, h)
	if err != nil {
		return nil, nil, err
	}
	return c, h, nil
}

func newForType(rom []byte, h *Header) (Cartridge, error) {
	switch h.CartType {
	case 0x00, 0x08, 0x09:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes), nil
	case 0x05, 0x06:
		return NewMBC2(rom), nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return NewMBC3(rom, h.RAMSizeBytes), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return NewMBC5(rom, h.RAMSizeBytes), nil
	default:
		return nil, fmt.Errorf("%w: type %#02x (%s)", ErrUnsupportedMBC, h.CartType, h.CartTypeStr)
	}
}

// HasBattery reports whether the cartridge type includes battery-backed RAM.
func HasBattery(cartType byte) bool {
	switch cartType {
	case 0x03, 0x06, 0x09, 0x0F, 0x10, 0x13, 0x1B, 0x1E:
		return true
	}
	return false
}

// NewCartridge picks an implementation based on the ROM header, falling back
// to ROM-only when the header is unparseable or the type unknown. Raw test
// images without valid checksums still run through this path.
func NewCartridge(rom []byte) Cartridge {
	h, err := ParseHeader(rom)
	if err != nil {
		return NewROMOnly(rom)
	}
	c, err := newForType(rom, h)
	if err != nil {
		return NewROMOnly(rom)
	}
	return c
}
