package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dmgemu/internal/emu"
	"dmgemu/internal/ui"
	"dmgemu/pkg/romfile"
	"dmgemu/pkg/web"
)

type CLIFlags struct {
	ROMPath string
	BootROM string
	Scale   int
	Title   string
	Trace   bool
	SaveRAM bool // persist battery RAM next to ROM (.sav)
	Listen  string

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex (e.g., "1a2b3c4d")
}

func parseFlags() CLIFlags {
	var f CLIFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb/.gbc, optionally .zip/.gz/.7z)")
	flag.StringVar(&f.BootROM, "bootrom", "", "optional DMG boot ROM")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbemu", "window title")
	flag.BoolVar(&f.Trace, "trace", false, "CPU trace log")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")
	flag.StringVar(&f.Listen, "listen", "", "serve frames over websockets at this address (e.g. :8090)")

	// headless options
	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC, listen string) error {
	if frames <= 0 {
		frames = 1
	}

	var stream *web.Server
	if listen != "" {
		stream = web.NewServer()
		defer stream.Close()
		go func() {
			if err := stream.ListenAndServe(listen); err != nil && err != http.ErrServerClosed {
				log.Printf("web: %v", err)
			}
		}()
		log.Printf("serving frames on %s", listen)
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		m.StepFrame()
		if stream != nil {
			stream.PushFrame(m.Framebuffer(), m.FrameHash())
		}
	}
	dur := time.Since(start)

	fb := m.Framebuffer() // RGBA 160x144*4
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		// normalize expected hex (allow with/without 0x, upper/lowercase)
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func main() {
	f := parseFlags()

	m := emu.New(emu.Config{
		Trace:    f.Trace,
		LimitFPS: false, // headless wants max speed
	})
	if f.BootROM != "" {
		boot, err := os.ReadFile(f.BootROM)
		if err != nil {
			log.Fatalf("read bootrom: %v", err)
		}
		m.SetBootROM(boot)
	}

	if f.ROMPath != "" {
		// prefer absolute path for state/save placement consistency
		path := f.ROMPath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if err := m.LoadROMFromFile(path); err != nil {
			log.Fatalf("load cart: %v", err)
		}
		if h := m.Header(); h != nil {
			log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
		}
	}

	// Battery RAM: load .sav if present
	var savPath string
	if f.SaveRAM && m.ROMPath() != "" {
		savPath = romfile.SavePath(m.ROMPath())
		if data, err := os.ReadFile(savPath); err == nil {
			if m.LoadBattery(data) {
				log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
			}
		}
	}

	writeBattery := func() {
		if !f.SaveRAM || savPath == "" {
			return
		}
		data, ok := m.SaveBattery()
		if !ok {
			return
		}
		if err := os.WriteFile(savPath, data, 0644); err == nil {
			m.ClearBatteryDirty()
			log.Printf("wrote %s", savPath)
		}
	}

	if f.Headless {
		if err := runHeadless(m, f.Frames, f.PNGOut, f.Expect, f.Listen); err != nil {
			log.Fatal(err)
		}
		writeBattery()
		return
	}

	uiCfg := ui.Config{Title: f.Title, Scale: f.Scale, ListenAddr: f.Listen}
	app := ui.NewApp(uiCfg, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	app.SaveSettings()
	// UI exit: save battery RAM if enabled (ROM may have changed in the menu)
	if f.SaveRAM && m.ROMPath() != "" {
		savPath = romfile.SavePath(m.ROMPath())
	}
	writeBattery()
}
