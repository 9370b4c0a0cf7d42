package ppu

// Sprite is one OAM entry with screen-space coordinates (X = oamX-8, Y = oamY-16).
// OAMIndex breaks priority ties between sprites sharing the same X.
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// ComposeSpriteLine composes sprite pixels over one scanline and returns
// 160 color indices (0 = no sprite pixel). bgci holds the BG/window color
// indices for the same line so that behind-BG sprites (attr bit7) can be
// masked. sprite16 selects 8x16 mode.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, y int, bgci [160]byte, sprite16 bool) [160]byte {
	ci, _ := ComposeSpriteLineExt(mem, sprites, y, bgci, sprite16)
	return ci
}

// ComposeSpriteLineExt is ComposeSpriteLine plus the palette selector per
// pixel (0 = OBP0, 1 = OBP1, from attr bit4 of the winning sprite).
func ComposeSpriteLineExt(mem VRAMReader, sprites []Sprite, y int, bgci [160]byte, sprite16 bool) (ci [160]byte, pal [160]byte) {
	// Winning sprite per pixel: lowest X, then lowest OAM index.
	type winner struct {
		x, idx int
		set    bool
	}
	var win [160]winner

	h := 8
	if sprite16 {
		h = 16
	}
	for _, s := range sprites {
		row := y - s.Y
		if row < 0 || row >= h {
			continue
		}
		if s.Attr&0x40 != 0 { // Y flip
			row = h - 1 - row
		}
		tile := s.Tile
		if sprite16 {
			tile &= 0xFE
			if row >= 8 {
				tile |= 0x01
				row -= 8
			}
		}
		base := 0x8000 + uint16(tile)*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)
		for px := 0; px < 8; px++ {
			x := s.X + px
			if x < 0 || x >= 160 {
				continue
			}
			bit := 7 - byte(px)
			if s.Attr&0x20 != 0 { // X flip
				bit = byte(px)
			}
			c := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if c == 0 {
				continue
			}
			if s.Attr&0x80 != 0 && bgci[x] != 0 {
				continue
			}
			w := &win[x]
			if w.set && (w.x < s.X || (w.x == s.X && w.idx < s.OAMIndex)) {
				continue
			}
			w.set, w.x, w.idx = true, s.X, s.OAMIndex
			ci[x] = c
			pal[x] = (s.Attr >> 4) & 1
		}
	}
	return ci, pal
}
