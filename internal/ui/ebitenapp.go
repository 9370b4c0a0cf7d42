package ui

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/sqweek/dialog"
	"golang.design/x/clipboard"

	"dmgemu/internal/emu"
	"dmgemu/pkg/romfile"
	"dmgemu/pkg/web"
)

const audioSampleRate = 48000

type App struct {
	cfg    Config
	m      *emu.Machine
	tex    *ebiten.Image
	paused bool
	fast   bool

	// overlay/menu
	showMenu bool
	menuMode string // "main", "slot", "rom", "settings", "keys"
	menuIdx  int

	currentSlot int
	romList     []string
	romSel      int
	romOff      int
	keysOff     int
	settingsOff int

	editingROMDir bool
	romDirInput   string

	toastMsg   string
	toastUntil time.Time

	curW, curH int

	// audio
	audioCtx    *audio.Context
	audioPlayer *audio.Player
	audioSrc    *apuStream
	audioMuted  bool

	clipboardOK bool

	stream          *web.Server
	lastBatterySave time.Time
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	a := &App{cfg: cfg, m: m, menuMode: "main", curW: 160, curH: 144}
	a.loadSettings()
	m.SetUseFetcherBG(a.cfg.UseFetcherBG)
	ebiten.SetWindowTitle(a.cfg.Title)
	ebiten.SetWindowSize(160*a.cfg.Scale, 144*a.cfg.Scale)
	a.clipboardOK = clipboard.Init() == nil
	a.audioCtx = audio.NewContext(audioSampleRate)
	a.startAudio()
	if a.cfg.ListenAddr != "" {
		a.stream = web.NewServer()
		a.stream.OnButtons = func(b web.ButtonState) {
			m.SetButtons(emu.Buttons{
				Right: b.Right, Left: b.Left, Up: b.Up, Down: b.Down,
				A: b.A, B: b.B, Select: b.Select, Start: b.Start,
			})
		}
		go a.stream.ListenAndServe(a.cfg.ListenAddr)
	}
	return a
}

func (a *App) Run() error {
	defer func() {
		if a.stream != nil {
			a.stream.Close()
		}
	}()
	return ebiten.RunGame(a)
}

func (a *App) startAudio() {
	if a.audioPlayer != nil {
		a.audioPlayer.Close()
		a.audioPlayer = nil
	}
	a.audioSrc = &apuStream{m: a.m, mono: !a.cfg.AudioStereo, muted: &a.audioMuted, lowLatency: a.cfg.AudioLowLatency}
	if p, err := a.audioCtx.NewPlayer(a.audioSrc); err == nil {
		a.audioPlayer = p
		a.applyPlayerBufferSize()
		a.audioPlayer.Play()
	}
}

func (a *App) Update() error {
	if !a.showMenu {
		// Keyboard → Game Boy buttons
		var btn emu.Buttons
		if ebiten.IsKeyPressed(ebiten.KeyRight) {
			btn.Right = true
		}
		if ebiten.IsKeyPressed(ebiten.KeyLeft) {
			btn.Left = true
		}
		if ebiten.IsKeyPressed(ebiten.KeyUp) {
			btn.Up = true
		}
		if ebiten.IsKeyPressed(ebiten.KeyDown) {
			btn.Down = true
		}
		if ebiten.IsKeyPressed(ebiten.KeyZ) {
			btn.A = true
		}
		if ebiten.IsKeyPressed(ebiten.KeyX) {
			btn.B = true
		}
		if ebiten.IsKeyPressed(ebiten.KeyEnter) {
			btn.Start = true
		}
		if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
			btn.Select = true
		}
		a.m.SetButtons(btn)
	}

	// Pause toggle (P)
	if inpututil.IsKeyJustPressed(ebiten.KeyP) && !a.showMenu {
		a.paused = !a.paused
	}

	// Fast-forward (Tab): while held, run multiple frames per Ebiten update
	wasFast := a.fast
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab) && !a.showMenu
	if a.fast != wasFast {
		a.applyPlayerBufferSize()
		if !a.fast {
			// Leaving fast-forward: drop the backlog so audio re-syncs
			a.m.APUClearAudioLatency()
		}
	}

	// Mute (M)
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		a.audioMuted = !a.audioMuted
	}

	// Reset shortcuts
	if inpututil.IsKeyJustPressed(ebiten.KeyR) && !a.showMenu { // post-boot reset
		a.m.ResetPostBoot()
		a.toast("Reset")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyB) && !a.showMenu { // boot ROM reset
		a.m.ResetWithBoot()
		a.toast("Reset (boot ROM)")
	}

	// Frame-step when paused (N)
	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.m.StepFrame()
	}

	// Quick save/load (F5/F9), slot select (1-4)
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := a.saveSlot(a.currentSlot); err == nil {
			a.toast(fmt.Sprintf("Saved slot %d", a.currentSlot+1))
		} else {
			a.toast("Save failed: " + err.Error())
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if err := a.loadSlot(a.currentSlot); err == nil {
			a.toast(fmt.Sprintf("Loaded slot %d", a.currentSlot+1))
		} else {
			a.toast("Load failed: " + err.Error())
		}
	}
	for i, k := range []ebiten.Key{ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3, ebiten.KeyDigit4} {
		if inpututil.IsKeyJustPressed(k) && !a.showMenu {
			a.currentSlot = i
			a.toast(fmt.Sprintf("Slot set to %d", i+1))
		}
	}

	// Fullscreen (F11)
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}

	// Open ROM via native file dialog (O)
	if inpututil.IsKeyJustPressed(ebiten.KeyO) && !a.showMenu {
		a.openROMDialog()
	}

	// Toggle menu (Escape)
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) && a.menuMode == "main" && !a.editingROMDir {
		a.showMenu = !a.showMenu
		a.menuIdx = 0
	}
	if a.showMenu {
		switch a.menuMode {
		case "slot":
			a.updateSlotMenu()
		case "rom":
			a.updateRomMenu()
		case "settings":
			a.updateSettingsMenu()
		case "keys":
			a.updateKeysMenu()
		default:
			a.updateMainMenu()
		}
	}

	// Screenshot (F12)
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if err := a.saveScreenshot(); err == nil {
			a.toast("Screenshot saved")
		} else {
			a.toast("Screenshot failed: " + err.Error())
		}
	}

	if !a.paused && !a.showMenu {
		if a.fast {
			for i := 0; i < 5; i++ {
				a.m.StepFrame()
			}
		} else {
			a.m.StepFrame()
		}
		if a.stream != nil {
			a.stream.PushFrame(a.m.Framebuffer(), a.m.FrameHash())
		}
	}

	a.adaptAudioBuffer()
	a.autosaveBattery()
	return nil
}

// autosaveBattery flushes dirty battery RAM to the .sav next to the ROM
// at most every few seconds.
func (a *App) autosaveBattery() {
	if a.m.ROMPath() == "" || !a.m.BatteryDirty() {
		return
	}
	if time.Since(a.lastBatterySave) < 5*time.Second {
		return
	}
	a.lastBatterySave = time.Now()
	data, ok := a.m.SaveBattery()
	if !ok {
		return
	}
	if err := os.WriteFile(romfile.SavePath(a.m.ROMPath()), data, 0644); err == nil {
		a.m.ClearBatteryDirty()
	}
}

func (a *App) openROMDialog() {
	path, err := dialog.File().
		Filter("Game Boy ROMs", "gb", "gbc", "zip", "gz", "7z").
		Title("Open ROM").Load()
	if err != nil { // cancelled or failed
		return
	}
	a.loadROM(path)
}

// loadROM loads a ROM path plus its battery save and updates the title.
func (a *App) loadROM(path string) {
	if err := a.m.LoadROMFromFile(path); err != nil {
		a.toast("ROM load failed: " + err.Error())
		return
	}
	a.toast("Loaded ROM: " + filepath.Base(path))
	if data, err := os.ReadFile(romfile.SavePath(path)); err == nil {
		_ = a.m.LoadBattery(data)
	}
	title := a.cfg.Title
	if h := a.m.Header(); h != nil && h.Title != "" {
		title = a.cfg.Title + " - [" + h.Title + "]"
	}
	ebiten.SetWindowTitle(title)
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(a.m.Framebuffer())
	screen.DrawImage(a.tex, nil)

	if a.showMenu {
		overlay := ebiten.NewImage(160, 144)
		overlay.Fill(color.RGBA{0, 0, 0, 128})
		screen.DrawImage(overlay, nil)
		switch a.menuMode {
		case "slot":
			a.drawSlotMenu(screen)
		case "rom":
			a.drawRomMenu(screen)
		case "settings":
			a.drawSettingsMenu(screen)
		case "keys":
			a.drawKeysMenu(screen)
		default:
			a.drawMainMenu(screen)
		}
	}

	if a.toastMsg != "" && time.Now().Before(a.toastUntil) {
		ebitenutil.DebugPrintAt(screen, a.toastMsg, 4, 144-14)
	}
	if a.paused {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 160-44, 2)
	}
}

func (a *App) Layout(outW, outH int) (int, int) {
	a.curW, a.curH = 160, 144
	return 160, 144
}

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

func (a *App) applyWindowSize() {
	ebiten.SetWindowSize(160*a.cfg.Scale, 144*a.cfg.Scale)
}

// statePath names the save-state file for a slot, next to the ROM.
func (a *App) statePath(slot int) string {
	base := "game"
	if p := a.m.ROMPath(); p != "" {
		base = strings.TrimSuffix(romfile.StatePath(p), ".state")
	}
	return fmt.Sprintf("%s.slot%d.state", base, slot+1)
}

func (a *App) saveSlot(slot int) error {
	return a.m.SaveStateToFile(a.statePath(slot))
}

func (a *App) loadSlot(slot int) error {
	return a.m.LoadStateFromFile(a.statePath(slot))
}

// findROMs lists loadable images under the configured ROMs directory.
func (a *App) findROMs() []string {
	var out []string
	_ = filepath.WalkDir(a.cfg.ROMsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".gb", ".gbc", ".zip", ".gz", ".7z":
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// saveScreenshot writes the framebuffer as a timestamped PNG and, when
// available, puts the image on the system clipboard.
func (a *App) saveScreenshot() error {
	fb := a.m.Framebuffer()
	img := &image.RGBA{
		Pix:    make([]byte, len(fb)),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	copy(img.Pix, fb)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if a.clipboardOK {
		clipboard.Write(clipboard.FmtImage, buf.Bytes())
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	return os.WriteFile(name, buf.Bytes(), 0644)
}

// text helpers for the debug-print menus (glyphs are 6px wide)

func (a *App) maxCharsForText(x int) int {
	n := (a.curW - x) / 6
	if n < 1 {
		n = 1
	}
	return n
}

func (a *App) truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func (a *App) wrapText(s string, max int) []string {
	var lines []string
	for len(s) > max {
		cut := strings.LastIndex(s[:max], " ")
		if cut <= 0 {
			cut = max
		}
		lines = append(lines, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		lines = append(lines, s)
	}
	return lines
}
