package cart

// extRAM is the external RAM block shared by the MBC implementations.
// It tracks a dirty flag so battery saves only hit disk after real writes.
type extRAM struct {
	data  []byte
	dirty bool
}

func newExtRAM(size int) extRAM {
	if size <= 0 {
		return extRAM{}
	}
	return extRAM{data: make([]byte, size)}
}

func (r *extRAM) read(off int) byte {
	if off < 0 || off >= len(r.data) {
		return 0xFF
	}
	return r.data[off]
}

func (r *extRAM) write(off int, value byte) {
	if off < 0 || off >= len(r.data) {
		return
	}
	r.data[off] = value
	r.dirty = true
}

func (r *extRAM) snapshot() []byte {
	if len(r.data) == 0 {
		return nil
	}
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

func (r *extRAM) restore(data []byte) {
	if len(r.data) == 0 || len(data) == 0 {
		return
	}
	copy(r.data, data)
}

func (r *extRAM) Dirty() bool { return r.dirty }

func (r *extRAM) ClearDirty() { r.dirty = false }
