package ppu

// Isolated BG fetcher + FIFO; the scanline renderers drive it tile by tile.

// VRAMReader provides read-only access for the fetcher or scanline helpers.
// It abstracts how VRAM bytes are fetched (tests vs. live PPU).
type VRAMReader interface {
	Read(addr uint16) byte
}

// fifo queues 2-bit color indices. Capacity is a power of two so the
// ring indices wrap with a mask.
type fifo struct {
	buf  [32]byte
	head int
	tail int
	size int
}

func (q *fifo) Clear()   { q.head, q.tail, q.size = 0, 0, 0 }
func (q *fifo) Len() int { return q.size }

func (q *fifo) Push(ci byte) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = ci & 0x03
	q.tail = (q.tail + 1) & (len(q.buf) - 1)
	q.size++
	return true
}

func (q *fifo) Pop() (byte, bool) {
	if q.size == 0 {
		return 0, false
	}
	v := q.buf[q.head]
	q.head = (q.head + 1) & (len(q.buf) - 1)
	q.size--
	return v, true
}

// bgFetcher decodes one tile row (8 pixels) at a time into the FIFO.
type bgFetcher struct {
	mem           VRAMReader
	fifo          *fifo
	mapBase       uint16 // 0x9800 or 0x9C00
	tileData8000  bool   // true: 0x8000 addressing; false: 0x8800 signed
	tileIndexAddr uint16 // tile index address within map
	fineY         byte   // 0..7 within tile
}

func newBGFetcher(mem VRAMReader, f *fifo) *bgFetcher { return &bgFetcher{mem: mem, fifo: f} }

// Configure sets tilemap and addressing mode for the next fetch.
func (fch *bgFetcher) Configure(mapBase uint16, tileData8000 bool, tileIndexAddr uint16, fineY byte) {
	fch.mapBase = mapBase
	fch.tileData8000 = tileData8000
	fch.tileIndexAddr = tileIndexAddr
	fch.fineY = fineY & 7
}

// rowAddr resolves the tile-data address of the configured row.
func (fch *bgFetcher) rowAddr(tileNum byte) uint16 {
	if fch.tileData8000 {
		return 0x8000 + uint16(tileNum)*16 + uint16(fch.fineY)*2
	}
	return uint16(int32(0x9000) + int32(int8(tileNum))*16 + int32(fch.fineY)*2)
}

// Fetch pushes 8 pixels (color indices) for the current tile row to the FIFO.
func (fch *bgFetcher) Fetch() {
	addr := fch.rowAddr(fch.mem.Read(fch.tileIndexAddr))
	lo := fch.mem.Read(addr)
	hi := fch.mem.Read(addr + 1)
	for bit := 7; bit >= 0; bit-- {
		ci := (hi>>bit&1)<<1 | lo>>bit&1
		fch.fifo.Push(ci)
	}
}
