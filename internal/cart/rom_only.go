package cart

// ROMOnly implements a 32 KiB cartridge with no banking and no external RAM.
type ROMOnly struct {
	rom []byte
}

func NewROMOnly(rom []byte) *ROMOnly {
	return &ROMOnly{rom: rom}
}

func (c *ROMOnly) Read(addr uint16) byte {
	if addr < 0x8000 && int(addr) < len(c.rom) {
		return c.rom[addr]
	}
	// external RAM range and short images read as open bus
	return 0xFF
}

// Write is a no-op: there are no MBC registers and no RAM to store into.
func (c *ROMOnly) Write(addr uint16, value byte) {}

func (c *ROMOnly) SaveState() []byte     { return nil }
func (c *ROMOnly) LoadState(data []byte) {}
