package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace        bool // log executed instructions
	LimitFPS     bool // throttle to ~60 Hz; headless runs leave this off
	UseFetcherBG bool // render BG via the fetcher/FIFO scanline path
}
